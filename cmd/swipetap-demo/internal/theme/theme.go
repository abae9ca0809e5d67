// Package theme holds the colors and metrics of the swipe demo window.
package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// Palette defines the demo colors.
type Palette struct {
	Background color.NRGBA
	Surface    color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Border     color.NRGBA
	// Marker is the swipe-driven square.
	Marker color.NRGBA
	// Active tints the status line while a swipe is tracking.
	Active color.NRGBA
}

// Config defines the demo metrics.
type Config struct {
	MarkerSize   unit.Dp
	CornerRadius unit.Dp
	Padding      unit.Dp
	FontBody     unit.Sp
}

// Theme wraps the material theme with platform styling.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// NewTheme creates a theme matching the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{Theme: mtheme}
	if runtime.GOOS == "darwin" {
		setupMacOSTheme(t)
	} else {
		setupDefaultTheme(t)
	}
	return t
}

func setupMacOSTheme(t *Theme) {
	t.Palette = Palette{
		Background: color.NRGBA{R: 0x1E, G: 0x1E, B: 0x1E, A: 0xFF},
		Surface:    color.NRGBA{R: 0x26, G: 0x26, B: 0x26, A: 0xFF},
		Text:       color.NRGBA{R: 0xF5, G: 0xF5, B: 0xF7, A: 0xFF},
		TextMuted:  color.NRGBA{R: 0x86, G: 0x86, B: 0x8B, A: 0xFF},
		Border:     color.NRGBA{R: 0x3A, G: 0x3A, B: 0x3C, A: 0xFF},
		Marker:     color.NRGBA{R: 0xFF, G: 0x45, B: 0x3A, A: 0xFF}, // systemRed
		Active:     color.NRGBA{R: 0x0A, G: 0x84, B: 0xFF, A: 0xFF},
	}
	t.Config = Config{
		MarkerSize:   unit.Dp(100),
		CornerRadius: unit.Dp(10),
		Padding:      unit.Dp(20),
		FontBody:     unit.Sp(13),
	}
}

func setupDefaultTheme(t *Theme) {
	t.Palette = Palette{
		Background: color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF},
		Surface:    color.NRGBA{R: 0x2C, G: 0x2C, B: 0x2C, A: 0xFF},
		Text:       color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		TextMuted:  color.NRGBA{R: 0xA0, G: 0xA0, B: 0xA0, A: 0xFF},
		Border:     color.NRGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF},
		Marker:     color.NRGBA{R: 0xE8, G: 0x11, B: 0x23, A: 0xFF},
		Active:     color.NRGBA{R: 0x00, G: 0x78, B: 0xD4, A: 0xFF},
	}
	t.Config = Config{
		MarkerSize:   unit.Dp(100),
		CornerRadius: unit.Dp(4),
		Padding:      unit.Dp(16),
		FontBody:     unit.Sp(14),
	}
}
