package router

import (
	"time"

	"swipetap/internal/touch"
)

// WindowServer resolves window identifiers carried by touch samples.
type WindowServer interface {
	Window(id int64) (Window, bool)
}

// Window hit-tests in-window locations.
type Window interface {
	// HitTest returns the deepest element containing p.
	HitTest(p touch.Point) (Element, bool)
}

// Element is a node of a window's view hierarchy.
type Element interface {
	// GestureRecognizers returns the recognizers attached to the element.
	// Only those implementing IndirectTouchHandler are considered.
	GestureRecognizers() []any
}

// IndirectTouchHandler receives trackpad touches routed to its element.
// All methods are called on the run loop goroutine.
type IndirectTouchHandler interface {
	WantsIndirectTouches() bool
	TouchesBegan(ev *TouchEvent)
	TouchesMoved(ev *TouchEvent)
	TouchesEnded(ev *TouchEvent)
	TouchesCancelled(ev *TouchEvent)
}

// TouchEvent is one phase message. Sample is shared by every message built
// from the same input event and must not be modified.
type TouchEvent struct {
	Sample  touch.Sample
	Element Element
	Phase   touch.Phase
	Time    time.Time
}

// Touches returns the contacts whose phase is in mask.
func (e *TouchEvent) Touches(mask touch.PhaseMask) []touch.Touch {
	return e.Sample.Matching(mask)
}

// Count returns the number of contacts whose phase is in mask.
func (e *TouchEvent) Count(mask touch.PhaseMask) int {
	return e.Sample.Count(mask)
}
