package main

import (
	"context"
	"time"

	"swipetap/internal/tap"
	"swipetap/internal/touch"
)

// scriptedSwipe describes a two-finger horizontal swipe played into the
// simulated backend.
type scriptedSwipe struct {
	Start    touch.Point
	Distance float64
	Steps    int
	Interval time.Duration
	WindowID int64
}

func defaultScript() scriptedSwipe {
	return scriptedSwipe{
		Start:    touch.Point{X: 0.2, Y: 0.5},
		Distance: 0.6,
		Steps:    30,
		Interval: 16 * time.Millisecond,
		WindowID: 1,
	}
}

// samples returns the began, moved and ended samples of the swipe with
// timestamps starting at t0.
func (s scriptedSwipe) samples(t0 time.Time) []touch.Sample {
	steps := s.Steps
	if steps < 1 {
		steps = 1
	}
	frame := func(i int, phase touch.Phase) touch.Sample {
		x := s.Start.X + s.Distance*float64(i)/float64(steps)
		return touch.Sample{
			WindowID:  s.WindowID,
			Location:  touch.Point{X: 0.5, Y: 0.5},
			Timestamp: t0.Add(time.Duration(i) * s.Interval),
			Touches: []touch.Touch{
				{Identity: 1, Phase: phase, Position: touch.Point{X: x, Y: s.Start.Y - 0.05}},
				{Identity: 2, Phase: phase, Position: touch.Point{X: x, Y: s.Start.Y + 0.05}},
			},
		}
	}

	out := make([]touch.Sample, 0, steps+1)
	out = append(out, frame(0, touch.PhaseBegan))
	for i := 1; i < steps; i++ {
		out = append(out, frame(i, touch.PhaseMoved))
	}
	out = append(out, frame(steps, touch.PhaseEnded))
	return out
}

// play injects the swipe in real time. It returns early when ctx is done,
// cancelling the contacts so recognizers do not stay in a touching state.
func (s scriptedSwipe) play(ctx context.Context, sim *tap.Simulated) {
	samples := s.samples(time.Now())
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for i, sample := range samples {
		if i > 0 {
			select {
			case <-ctx.Done():
				last := samples[i-1].Clone()
				for j := range last.Touches {
					last.Touches[j].Phase = touch.PhaseCancelled
				}
				last.Timestamp = time.Now()
				sim.InjectSample(last)
				return
			case <-ticker.C:
			}
		}
		sample.Timestamp = time.Now()
		sim.InjectSample(sample)
	}
}

// loop plays the swipe every pause until ctx is done.
func (s scriptedSwipe) loop(ctx context.Context, sim *tap.Simulated, pause time.Duration) {
	for {
		s.play(ctx, sim)
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}
