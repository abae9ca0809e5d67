//go:build !darwin && !linux

package tap

import (
	"runtime"

	"swipetap/internal/touch"
)

type unsupportedBackend struct{}

func newPlatformBackend(PlatformOptions) Backend {
	return unsupportedBackend{}
}

func (unsupportedBackend) Name() string {
	return "unsupported-" + runtime.GOOS
}

func (unsupportedBackend) Register(uint64, Placement, func(RawEvent)) (Registration, error) {
	return nil, ErrNotAvailable
}

func (unsupportedBackend) Decode(RawEvent) (touch.Sample, error) {
	return touch.Sample{}, ErrDecode
}

func platformEnvironment() Environment {
	return Environment{
		Provider:   "stub",
		Available:  false,
		Permission: "not_applicable",
		Message:    "indirect touch is not supported on " + runtime.GOOS,
	}
}
