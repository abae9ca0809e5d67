package tap

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipetap/internal/metrics"
	"swipetap/internal/touch"
)

type recorder struct {
	mu      sync.Mutex
	samples []touch.Sample
}

func (r *recorder) callback(s touch.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func twoFingers(phase touch.Phase) touch.Sample {
	return touch.Sample{
		WindowID: 7,
		Touches: []touch.Touch{
			{Identity: 1, Phase: phase, Position: touch.Point{X: 0.3, Y: 0.5}},
			{Identity: 2, Phase: phase, Position: touch.Point{X: 0.3, Y: 0.6}},
		},
	}
}

func TestCreateDeliversSamples(t *testing.T) {
	sim := NewSimulated()
	rec := &recorder{}

	h, err := Create(sim, MustKindSet(KindTouches), rec.callback)
	require.NoError(t, err)
	defer h.Destroy()

	assert.True(t, h.Enabled())
	assert.Equal(t, 1, sim.InjectSample(twoFingers(touch.PhaseBegan)))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, int64(7), rec.samples[0].WindowID)
	assert.Len(t, rec.samples[0].Touches, 2)
}

func TestCreateUsesDefaultPlacement(t *testing.T) {
	sim := NewSimulated()
	h, err := Create(sim, MustKindSet(KindTouches), func(touch.Sample) {})
	require.NoError(t, err)
	defer h.Destroy()

	placement, mask := sim.LastPlacement()
	assert.Equal(t, DefaultPlacement, placement)
	assert.True(t, placement.ListenOnly)
	assert.Equal(t, uint64(1)<<KindTouches, mask)
}

func TestCreateValidation(t *testing.T) {
	_, err := Create(nil, MustKindSet(KindTouches), func(touch.Sample) {})
	assert.ErrorIs(t, err, ErrTapCreation)

	_, err = Create(NewSimulated(), KindSet{}, func(touch.Sample) {})
	assert.ErrorIs(t, err, ErrEmptyKindSet)

	_, err = Create(NewSimulated(), MustKindSet(KindTouches), nil)
	assert.Error(t, err)
}

func TestCreatePermissionDenied(t *testing.T) {
	sim := NewSimulated()
	sim.Deny(ErrPermissionDenied)

	h, err := Create(sim, MustKindSet(KindTouches), func(touch.Sample) {})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrTapCreation)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 0, sim.Live())
}

func TestSetEnabledSuppressesDelivery(t *testing.T) {
	sim := NewSimulated()
	rec := &recorder{}
	h, err := Create(sim, MustKindSet(KindTouches), rec.callback)
	require.NoError(t, err)
	defer h.Destroy()

	h.SetEnabled(false)
	assert.False(t, h.Enabled())
	assert.False(t, sim.Enabled())
	sim.InjectSample(twoFingers(touch.PhaseBegan))
	assert.Equal(t, 0, rec.count())

	h.SetEnabled(true)
	sim.InjectSample(twoFingers(touch.PhaseBegan))
	assert.Equal(t, 1, rec.count())
}

func TestAutoDisableIsReasserted(t *testing.T) {
	reg := metrics.NewRegistry("test")
	sim := NewSimulated()
	rec := &recorder{}
	h, err := Create(sim, MustKindSet(KindTouches), rec.callback, WithMetrics(reg))
	require.NoError(t, err)
	defer h.Destroy()

	for _, kind := range []EventKind{KindTapDisabledByTimeout, KindTapDisabledByUserInput} {
		sim.AutoDisable(kind)
		assert.True(t, sim.Enabled(), "tap should be re-enabled after %s", kind)
	}
	assert.Equal(t, 0, rec.count(), "auto-disable notices are not samples")

	sim.InjectSample(twoFingers(touch.PhaseMoved))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, int64(2), reg.Snapshot()["test_tap_reenabled_total"])
}

func TestAutoDisableKeepsRequestedDisable(t *testing.T) {
	sim := NewSimulated()
	h, err := Create(sim, MustKindSet(KindTouches), func(touch.Sample) {})
	require.NoError(t, err)
	defer h.Destroy()

	h.SetEnabled(false)
	sim.AutoDisable(KindTapDisabledByTimeout)
	assert.False(t, sim.Enabled())
	assert.False(t, h.Enabled())
}

func TestUndecodableEventsAreDropped(t *testing.T) {
	reg := metrics.NewRegistry("test")
	sim := NewSimulated()
	rec := &recorder{}
	h, err := Create(sim, MustKindSet(KindTouches), rec.callback, WithMetrics(reg))
	require.NoError(t, err)
	defer h.Destroy()

	sim.Inject(RawEvent{Kind: KindTouches, Payload: "garbage"})
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, int64(1), reg.Snapshot()[`test_tap_dropped_total{reason="decode"}`])
	assert.Equal(t, int64(1), reg.Snapshot()["test_tap_events_total"])
}

func TestUnrequestedKindsAreIgnored(t *testing.T) {
	sim := NewSimulated()
	rec := &recorder{}
	h, err := Create(sim, MustKindSet(KindTouches), rec.callback)
	require.NoError(t, err)
	defer h.Destroy()

	assert.Equal(t, 0, sim.Inject(RawEvent{Kind: KindFluidSwipe, Payload: twoFingers(touch.PhaseBegan)}))
	assert.Equal(t, 0, rec.count())
}

func TestDestroy(t *testing.T) {
	sim := NewSimulated()
	rec := &recorder{}
	h, err := Create(sim, MustKindSet(KindTouches), rec.callback)
	require.NoError(t, err)
	require.Equal(t, 1, sim.Live())

	require.NoError(t, h.Destroy())
	assert.Equal(t, 0, sim.Live())
	assert.False(t, h.Enabled())
	assert.NoError(t, h.Destroy(), "second destroy is a no-op")

	sim.InjectSample(twoFingers(touch.PhaseBegan))
	assert.Equal(t, 0, rec.count())

	// SetEnabled after destroy must not resurrect the tap.
	h.SetEnabled(true)
	assert.False(t, h.Enabled())
}

func TestRepeatedCreateDestroy(t *testing.T) {
	sim := NewSimulated()
	for i := 0; i < 5; i++ {
		h, err := Create(sim, MustKindSet(KindTouches), func(touch.Sample) {})
		require.NoError(t, err)
		require.NoError(t, h.Destroy())
	}
	assert.Equal(t, 0, sim.Live())
	assert.Equal(t, 5, sim.Total())
}

func TestSimulatedDecodeCopies(t *testing.T) {
	sim := NewSimulated()
	orig := twoFingers(touch.PhaseBegan)
	got, err := sim.Decode(RawEvent{Kind: KindTouches, Payload: &orig})
	require.NoError(t, err)

	got.Touches[0].Identity = 99
	assert.Equal(t, int64(1), orig.Touches[0].Identity)

	_, err = sim.Decode(RawEvent{Kind: KindTouches})
	assert.True(t, errors.Is(err, ErrDecode))
}
