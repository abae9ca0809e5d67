// Package touch defines the decoded multi-touch sample that flows from the
// event tap through the router to gesture recognizers.
//
// Positions are normalized to the input surface: (0,0) is the bottom-left
// corner of the trackpad and (1,1) the top-right corner.
package touch

import (
	"strings"
	"time"
)

// Phase is the lifecycle phase of a single finger contact.
// Phases are bit flags so they can be combined into a PhaseMask.
type Phase uint8

const (
	PhaseBegan Phase = 1 << iota
	PhaseMoved
	PhaseStationary
	PhaseEnded
	PhaseCancelled
)

// PhaseMask selects contacts by phase.
type PhaseMask = Phase

const (
	// PhaseTouching matches fingers that are down on the surface.
	PhaseTouching PhaseMask = PhaseBegan | PhaseMoved | PhaseStationary
	// PhaseAny matches every contact present in a sample.
	PhaseAny PhaseMask = PhaseTouching | PhaseEnded | PhaseCancelled
)

// String returns a readable name for a phase or mask.
func (p Phase) String() string {
	switch p {
	case PhaseBegan:
		return "began"
	case PhaseMoved:
		return "moved"
	case PhaseStationary:
		return "stationary"
	case PhaseEnded:
		return "ended"
	case PhaseCancelled:
		return "cancelled"
	case PhaseTouching:
		return "touching"
	case PhaseAny:
		return "any"
	case 0:
		return "none"
	}
	var parts []string
	for _, single := range []Phase{PhaseBegan, PhaseMoved, PhaseStationary, PhaseEnded, PhaseCancelled} {
		if p&single != 0 {
			parts = append(parts, single.String())
		}
	}
	return strings.Join(parts, "|")
}

// Touch is one finger contact within a sample.
type Touch struct {
	// Identity is stable for the lifetime of one finger contact.
	Identity int64
	Phase    Phase
	// Position is normalized to [0,1]x[0,1] of the input surface.
	Position Point
	// Resting reports a finger the device considers resting (palm, thumb).
	Resting bool
}

// Sample is one decoded touch event.
type Sample struct {
	Touches []Touch
	// WindowID identifies the window the event was targeted at.
	WindowID int64
	// Location is the pointer position in window coordinates.
	Location  Point
	Timestamp time.Time
}

// Matching returns the contacts whose phase is in mask.
func (s *Sample) Matching(mask PhaseMask) []Touch {
	if s == nil {
		return nil
	}
	var out []Touch
	for _, t := range s.Touches {
		if t.Phase&mask != 0 {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of contacts whose phase is in mask.
func (s *Sample) Count(mask PhaseMask) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Touches {
		if t.Phase&mask != 0 {
			n++
		}
	}
	return n
}

// Has reports whether any contact has a phase in mask.
func (s *Sample) Has(mask PhaseMask) bool {
	return s.Count(mask) > 0
}

// Clone returns a deep copy of the sample.
func (s Sample) Clone() Sample {
	c := s
	c.Touches = append([]Touch(nil), s.Touches...)
	return c
}
