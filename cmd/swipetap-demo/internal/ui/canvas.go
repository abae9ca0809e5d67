// Package ui draws the swipe demo: a marker moved by two-finger trackpad
// swipes, and a status line with the recognizer state.
package ui

import (
	"fmt"
	"image"
	"sync"

	"gioui.org/f32"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/widget/material"

	"swipetap/cmd/swipetap-demo/internal/theme"
	"swipetap/internal/gesture"
)

// Canvas is the demo's only element. Observe is called on the run loop
// goroutine and Layout on the window goroutine.
type Canvas struct {
	theme *theme.Theme
	swipe *gesture.Swipe

	// FlipY inverts vertical motion for input surfaces whose origin is the
	// bottom-left corner.
	FlipY bool

	// Invalidate requests a new frame. It may be nil.
	Invalidate func()

	mu     sync.Mutex
	size   image.Point
	offset f32.Point
	status Status
}

// Status is the last observed recognizer output.
type Status struct {
	State    gesture.State
	Value    f32.Point
	Velocity float64
	Swipes   int
}

func (s Status) String() string {
	velocity := "n/a"
	if s.Velocity != gesture.NoInterval {
		velocity = fmt.Sprintf("%.3fs", s.Velocity)
	}
	return fmt.Sprintf("%s  value=(%.3f, %.3f)  interval=%s  swipes=%d",
		s.State, s.Value.X, s.Value.Y, velocity, s.Swipes)
}

// NewCanvas creates a canvas hosting a swipe recognizer built from opts.
// The canvas observes every state transition of the recognizer.
func NewCanvas(t *theme.Theme, opts ...gesture.SwipeOption) *Canvas {
	c := &Canvas{
		theme:  t,
		status: Status{Velocity: gesture.NoInterval},
	}
	opts = append(opts, gesture.WithAction(c.Observe))
	c.swipe = gesture.NewSwipe(opts...)
	return c
}

// Swipe returns the hosted recognizer.
func (c *Canvas) Swipe() *gesture.Swipe {
	return c.swipe
}

// GestureRecognizers implements router.Element.
func (c *Canvas) GestureRecognizers() []any {
	return []any{c.swipe}
}

// Observe records a state transition of s. Changes move the marker by the
// swipe delta scaled to the last laid-out canvas size.
func (c *Canvas) Observe(s *gesture.Swipe) {
	c.mu.Lock()
	state := s.State()
	if state == gesture.StateChanged {
		d := s.Delta()
		dy := float32(d.DY)
		if c.FlipY {
			dy = -dy
		}
		c.offset.X += float32(d.DX) * float32(c.size.X)
		c.offset.Y += dy * float32(c.size.Y)
		c.offset = c.clamp(c.offset)
	}
	if state == gesture.StateEnded {
		c.status.Swipes++
	}
	v := s.Value()
	c.status.State = state
	c.status.Value = f32.Point{X: float32(v.X), Y: float32(v.Y)}
	c.status.Velocity = s.Velocity()
	c.mu.Unlock()

	if c.Invalidate != nil {
		c.Invalidate()
	}
}

// clamp keeps the marker center inside the canvas.
func (c *Canvas) clamp(p f32.Point) f32.Point {
	hx, hy := float32(c.size.X)/2, float32(c.size.Y)/2
	return f32.Point{X: limit(p.X, hx), Y: limit(p.Y, hy)}
}

func limit(v, bound float32) float32 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// Offset returns the marker displacement from the canvas center in pixels.
func (c *Canvas) Offset() f32.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Status returns the last observed recognizer output.
func (c *Canvas) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Layout renders the canvas filling the constraints.
func (c *Canvas) Layout(gtx layout.Context) layout.Dimensions {
	size := gtx.Constraints.Max

	c.mu.Lock()
	c.size = size
	c.offset = c.clamp(c.offset)
	offset := c.offset
	status := c.status
	c.mu.Unlock()

	paint.Fill(gtx.Ops, c.theme.Palette.Background)

	side := gtx.Dp(c.theme.Config.MarkerSize)
	min := image.Pt(
		size.X/2+int(offset.X)-side/2,
		size.Y/2+int(offset.Y)-side/2,
	)
	marker := image.Rectangle{Min: min, Max: min.Add(image.Pt(side, side))}
	rr := clip.UniformRRect(marker, gtx.Dp(c.theme.Config.CornerRadius))
	paint.FillShape(gtx.Ops, c.theme.Palette.Marker, rr.Op(gtx.Ops))

	layout.UniformInset(c.theme.Config.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		l := material.Body1(c.theme.Theme, status.String())
		l.TextSize = c.theme.Config.FontBody
		l.Color = c.theme.Palette.TextMuted
		if status.State == gesture.StateBegan || status.State == gesture.StateChanged {
			l.Color = c.theme.Palette.Active
		}
		return l.Layout(gtx)
	})

	return layout.Dimensions{Size: size}
}
