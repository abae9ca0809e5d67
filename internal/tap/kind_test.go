package tap

import (
	"errors"
	"testing"
)

func TestNewKindSet(t *testing.T) {
	s, err := NewKindSet(KindTouches, KindFluidSwipe, KindTouches)
	if err != nil {
		t.Fatalf("NewKindSet: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 kinds, got %d", s.Len())
	}
	want := uint64(1)<<29 | uint64(1)<<30
	if s.Mask() != want {
		t.Errorf("mask = %#x, want %#x", s.Mask(), want)
	}
	if !s.Contains(KindTouches) || s.Contains(KindFluidEdgeSwipe) {
		t.Errorf("unexpected membership in %s", s)
	}
}

func TestNewKindSetEmpty(t *testing.T) {
	if _, err := NewKindSet(); !errors.Is(err, ErrEmptyKindSet) {
		t.Errorf("expected ErrEmptyKindSet, got %v", err)
	}
}

func TestNewKindSetRejectsAutoDisable(t *testing.T) {
	if _, err := NewKindSet(KindTapDisabledByTimeout); err == nil {
		t.Error("auto-disable kinds must not be requestable")
	}
}

func TestKindSetOrdering(t *testing.T) {
	s := MustKindSet(KindFluidEdgeSwipe, KindTouches)
	kinds := s.Kinds()
	if len(kinds) != 2 || kinds[0] != KindTouches || kinds[1] != KindFluidEdgeSwipe {
		t.Errorf("kinds not sorted: %v", kinds)
	}
	if got := s.String(); got != "{touches,fluid-edge-swipe}" {
		t.Errorf("String() = %q", got)
	}

	// Kinds returns a copy.
	kinds[0] = KindFluidSwipe
	if s.Kinds()[0] != KindTouches {
		t.Error("Kinds exposed internal storage")
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{KindTouches, "touches"},
		{KindTapDisabledByTimeout, "tap-disabled-by-timeout"},
		{KindTapDisabledByUserInput, "tap-disabled-by-user-input"},
		{EventKind(7), "kind(7)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint32(tt.kind), got, tt.want)
		}
	}
}

func TestIsAutoDisable(t *testing.T) {
	if !KindTapDisabledByTimeout.IsAutoDisable() || !KindTapDisabledByUserInput.IsAutoDisable() {
		t.Error("auto-disable kinds not recognised")
	}
	if KindTouches.IsAutoDisable() {
		t.Error("touches is not an auto-disable kind")
	}
}
