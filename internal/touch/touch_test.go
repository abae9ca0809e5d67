package touch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample(phases ...Phase) *Sample {
	s := &Sample{}
	for i, p := range phases {
		s.Touches = append(s.Touches, Touch{Identity: int64(i + 1), Phase: p})
	}
	return s
}

func TestSampleCount(t *testing.T) {
	s := sample(PhaseBegan, PhaseMoved, PhaseEnded, PhaseStationary, PhaseCancelled)

	assert.Equal(t, 5, s.Count(PhaseAny))
	assert.Equal(t, 3, s.Count(PhaseTouching))
	assert.Equal(t, 1, s.Count(PhaseEnded))
	assert.True(t, s.Has(PhaseCancelled))
	assert.Len(t, s.Matching(PhaseBegan|PhaseEnded), 2)
}

func TestSampleCountNil(t *testing.T) {
	var s *Sample
	assert.Equal(t, 0, s.Count(PhaseAny))
	assert.Nil(t, s.Matching(PhaseAny))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "moved", PhaseMoved.String())
	assert.Equal(t, "touching", PhaseTouching.String())
	assert.Equal(t, "began|ended", (PhaseBegan | PhaseEnded).String())
	assert.Equal(t, "none", Phase(0).String())
}

func TestSizeClamp(t *testing.T) {
	tests := []struct {
		in, want Size
	}{
		{Size{0.5, 0.5}, Size{0.5, 0.5}},
		{Size{-1, 2}, Size{0, 1}},
		{Size{1.5, -0.1}, Size{1, 0}},
		{Size{math.NaN(), math.Inf(1)}, Size{0, 1}},
		{Size{math.Inf(-1), 0}, Size{0, 0}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.in.Clamp())
	}
}

func TestAverage(t *testing.T) {
	got := Average([]Touch{
		{Position: Point{0.3, 0.5}},
		{Position: Point{0.3, 0.6}},
	})
	assert.InDelta(t, 0.3, got.X, 1e-12)
	assert.InDelta(t, 0.55, got.Y, 1e-12)
	assert.Equal(t, Point{}, Average(nil))
}

func TestCloneIsDeep(t *testing.T) {
	s := *sample(PhaseBegan)
	c := s.Clone()
	c.Touches[0].Phase = PhaseEnded
	assert.Equal(t, PhaseBegan, s.Touches[0].Phase)
}
