// Package gesture implements gesture recognizers driven by routed indirect
// touches.
package gesture

import (
	"time"

	"swipetap/internal/router"
	"swipetap/internal/touch"
)

// State is the lifecycle state of a recognizer.
type State int

const (
	StatePossible State = iota
	StateBegan
	StateChanged
	StateEnded
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePossible:
		return "possible"
	case StateBegan:
		return "began"
	case StateChanged:
		return "changed"
	case StateEnded:
		return "ended"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s only leaves through a reset.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateCancelled || s == StateFailed
}

// active reports whether a gesture is in progress.
func (s State) active() bool {
	return s == StateBegan || s == StateChanged
}

// NoInterval is the velocity reported before a second sample was seen.
const NoInterval = -1.0

// DefaultInset is the detection inset of a new recognizer.
var DefaultInset = touch.Size{Width: 0.5, Height: 0.5}

// SwipeOption configures a Swipe.
type SwipeOption func(*Swipe)

// WithClock sets the time source used to stamp samples.
func WithClock(now func() time.Time) SwipeOption {
	return func(s *Swipe) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithInset sets the initial detection inset. It is clamped like
// SetDetectionInset.
func WithInset(inset touch.Size) SwipeOption {
	return func(s *Swipe) {
		s.inset = inset.Clamp()
	}
}

// WithAction registers fn to be called after every state transition other
// than a reset.
func WithAction(fn func(*Swipe)) SwipeOption {
	return func(s *Swipe) {
		s.action = fn
	}
}

// Swipe recognizes a two-finger trackpad swipe and reports the averaged
// finger offset since the gesture began.
//
// A Swipe is not safe for concurrent use. The router calls it on the run
// loop goroutine only.
type Swipe struct {
	clock  func() time.Time
	action func(*Swipe)
	inset  touch.Size

	state    State
	value    touch.Point
	delta    touch.Vector
	stamp    time.Time
	velocity float64
	initial  []touch.Touch
}

var _ router.IndirectTouchHandler = (*Swipe)(nil)

// NewSwipe creates a recognizer in StatePossible.
func NewSwipe(opts ...SwipeOption) *Swipe {
	s := &Swipe{
		clock:    time.Now,
		inset:    DefaultInset,
		velocity: NoInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Swipe) State() State { return s.state }

// Value is the average finger position relative to where the gesture began,
// scaled by the detection inset. Negative components are closer to the
// bottom-left of the trackpad.
func (s *Swipe) Value() touch.Point { return s.value }

// Delta is the change in Value since the previous sample.
func (s *Swipe) Delta() touch.Vector { return s.delta }

// Velocity is the time in seconds between the last two samples, or
// NoInterval. Despite the name it is an interval, not a rate.
func (s *Swipe) Velocity() float64 { return s.velocity }

// DetectionInset returns the inset applied to finger positions.
func (s *Swipe) DetectionInset() touch.Size { return s.inset }

// SetDetectionInset sets the inset; each axis is clamped to [0,1].
func (s *Swipe) SetDetectionInset(inset touch.Size) {
	s.inset = inset.Clamp()
}

// WantsIndirectTouches implements router.IndirectTouchHandler.
func (s *Swipe) WantsIndirectTouches() bool { return true }

// Reset returns the recognizer to StatePossible and clears all tracking.
func (s *Swipe) Reset() {
	s.state = StatePossible
	s.value = touch.Point{}
	s.delta = touch.Vector{}
	s.stamp = time.Time{}
	s.velocity = NoInterval
	s.initial = nil
}

// TouchesBegan starts tracking when at least one finger is down. A began
// message after a finished gesture recycles the recognizer first.
func (s *Swipe) TouchesBegan(ev *router.TouchEvent) {
	if s.state.Terminal() {
		s.Reset()
	}
	if ev.Count(touch.PhaseTouching) == 0 {
		return
	}
	s.initial = ev.Touches(touch.PhaseAny)
	s.stamp = s.clock()
	s.velocity = NoInterval
	s.transition(StateBegan)
}

// TouchesMoved updates the swipe, or fails it when the finger count is not
// exactly two.
func (s *Swipe) TouchesMoved(ev *router.TouchEvent) {
	if !s.state.active() {
		return
	}
	current := ev.Touches(touch.PhaseAny)
	if len(current) != router.SwipeFingers {
		s.transition(StateFailed)
		return
	}
	i := s.average(s.initial)
	o := s.average(current)
	s.update(touch.Point{X: o.X - i.X, Y: o.Y - i.Y}, s.clock())
	s.transition(StateChanged)
}

// TouchesEnded ends the swipe once every finger has lifted.
func (s *Swipe) TouchesEnded(ev *router.TouchEvent) {
	s.finish(ev, StateEnded)
}

// TouchesCancelled cancels the swipe once no finger is down.
func (s *Swipe) TouchesCancelled(ev *router.TouchEvent) {
	s.finish(ev, StateCancelled)
}

func (s *Swipe) finish(ev *router.TouchEvent, to State) {
	if !s.state.active() || ev.Count(touch.PhaseTouching) != 0 {
		return
	}
	s.tick(s.clock())
	s.transition(to)
}

// update stores value, the delta from the previous value and the sample
// interval together.
func (s *Swipe) update(value touch.Point, now time.Time) {
	s.delta = value.Sub(s.value)
	s.value = value
	s.tick(now)
}

func (s *Swipe) tick(now time.Time) {
	if !s.stamp.IsZero() {
		s.velocity = now.Sub(s.stamp).Seconds()
	}
	s.stamp = now
}

// average is the mean contact position divided by (1 - inset) per axis.
// An axis with inset 1 has no usable range and averages to 0.
func (s *Swipe) average(touches []touch.Touch) touch.Point {
	mean := touch.Average(touches)
	return touch.Point{
		X: scale(mean.X, s.inset.Width),
		Y: scale(mean.Y, s.inset.Height),
	}
}

func scale(v, inset float64) float64 {
	span := 1 - inset
	if span == 0 {
		return 0
	}
	return v / span
}

func (s *Swipe) transition(to State) {
	s.state = to
	if s.action != nil {
		s.action(s)
	}
}
