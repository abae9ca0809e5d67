package tap

import (
	"fmt"
	"sort"
	"strings"
)

// EventKind identifies a class of system input event. Values follow the
// Quartz CGEventType numbering on every platform.
type EventKind uint32

const (
	// KindTouches carries raw multi-touch trackpad contacts.
	KindTouches EventKind = 29
	// KindFluidSwipe is the system up/down swipe (Mission Control).
	KindFluidSwipe EventKind = 30
	// KindFluidEdgeSwipe is the system edge swipe (Notification Center).
	KindFluidEdgeSwipe EventKind = 31

	// KindTapDisabledByTimeout is sent when the system disabled the tap
	// because a callback took too long.
	KindTapDisabledByTimeout EventKind = 0xFFFFFFFE
	// KindTapDisabledByUserInput is sent when the system disabled the tap
	// in response to user input.
	KindTapDisabledByUserInput EventKind = 0xFFFFFFFF
)

// maxMaskKind is the first kind that does not fit in the registration mask.
const maxMaskKind = 64

// String returns the name of the kind.
func (k EventKind) String() string {
	switch k {
	case KindTouches:
		return "touches"
	case KindFluidSwipe:
		return "fluid-swipe"
	case KindFluidEdgeSwipe:
		return "fluid-edge-swipe"
	case KindTapDisabledByTimeout:
		return "tap-disabled-by-timeout"
	case KindTapDisabledByUserInput:
		return "tap-disabled-by-user-input"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// IsAutoDisable reports whether k is one of the system self-protection
// notifications that switch a tap off.
func (k EventKind) IsAutoDisable() bool {
	return k == KindTapDisabledByTimeout || k == KindTapDisabledByUserInput
}

// KindSet is an immutable, non-empty set of event kinds.
type KindSet struct {
	kinds []EventKind
	mask  uint64
}

// NewKindSet builds a set from kinds. Duplicates are collapsed.
// Auto-disable notifications are always delivered and cannot be requested.
func NewKindSet(kinds ...EventKind) (KindSet, error) {
	var s KindSet
	for _, k := range kinds {
		if k >= maxMaskKind {
			return KindSet{}, fmt.Errorf("event kind %s cannot be encoded in a tap mask", k)
		}
		bit := uint64(1) << k
		if s.mask&bit != 0 {
			continue
		}
		s.mask |= bit
		s.kinds = append(s.kinds, k)
	}
	if s.mask == 0 {
		return KindSet{}, ErrEmptyKindSet
	}
	sort.Slice(s.kinds, func(i, j int) bool { return s.kinds[i] < s.kinds[j] })
	return s, nil
}

// MustKindSet is like NewKindSet but panics on error. It is intended for
// package-level constant sets.
func MustKindSet(kinds ...EventKind) KindSet {
	s, err := NewKindSet(kinds...)
	if err != nil {
		panic(err)
	}
	return s
}

// Mask returns the registration bitmask.
func (s KindSet) Mask() uint64 {
	return s.mask
}

// Contains reports whether k is in the set.
func (s KindSet) Contains(k EventKind) bool {
	return k < maxMaskKind && s.mask&(uint64(1)<<k) != 0
}

// Kinds returns the kinds in ascending order.
func (s KindSet) Kinds() []EventKind {
	return append([]EventKind(nil), s.kinds...)
}

// Len returns the number of kinds in the set.
func (s KindSet) Len() int {
	return len(s.kinds)
}

func (s KindSet) String() string {
	names := make([]string, len(s.kinds))
	for i, k := range s.kinds {
		names[i] = k.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}
