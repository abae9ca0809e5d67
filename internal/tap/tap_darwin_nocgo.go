//go:build darwin && !cgo

package tap

import "swipetap/internal/touch"

// darwinBackendNoCgo is used for macOS builds without cgo; Quartz event taps
// need cgo to reach CoreGraphics.
type darwinBackendNoCgo struct{}

func newPlatformBackend(PlatformOptions) Backend {
	return darwinBackendNoCgo{}
}

func (darwinBackendNoCgo) Name() string {
	return "quartz-nocgo"
}

func (darwinBackendNoCgo) Register(uint64, Placement, func(RawEvent)) (Registration, error) {
	return nil, ErrNotAvailable
}

func (darwinBackendNoCgo) Decode(RawEvent) (touch.Sample, error) {
	return touch.Sample{}, ErrDecode
}

func platformEnvironment() Environment {
	return Environment{
		Provider:   "stub",
		Available:  false,
		Permission: "unknown",
		Message:    "built without cgo",
		Guidance:   "rebuild with CGO_ENABLED=1 to use the Quartz event tap",
	}
}
