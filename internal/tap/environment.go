package tap

import (
	"log/slog"

	"swipetap/internal/touch"
)

// Environment summarises event tap backend support on this host.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

// DetectEnvironment reports whether a real system tap can be created.
func DetectEnvironment() Environment {
	return platformEnvironment()
}

// Locator resolves the window and in-window pointer location for backends
// whose raw events carry no window information (evdev). ok=false leaves the
// sample untargeted.
type Locator func() (windowID int64, location touch.Point, ok bool)

// PlatformOptions configures the platform backend.
type PlatformOptions struct {
	Logger *slog.Logger
	// Devices restricts the Linux backend to these /dev/input nodes.
	// Empty means autodetect.
	Devices []string
	Locate  Locator
}

// NewPlatformBackend returns the backend for the running OS.
func NewPlatformBackend(opts PlatformOptions) Backend {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return newPlatformBackend(opts)
}
