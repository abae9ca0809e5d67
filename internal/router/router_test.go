package router_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipetap/internal/gesture"
	"swipetap/internal/metrics"
	"swipetap/internal/router"
	"swipetap/internal/runloop"
	"swipetap/internal/tap"
	"swipetap/internal/touch"
)

const testWindow = 42

type element struct {
	recognizers []any
}

func (e *element) GestureRecognizers() []any { return e.recognizers }

type window struct {
	width, height float64
	content       *element
}

func (w *window) HitTest(p touch.Point) (router.Element, bool) {
	if p.X < 0 || p.Y < 0 || p.X > w.width || p.Y > w.height {
		return nil, false
	}
	return w.content, true
}

type screen map[int64]*window

func (s screen) Window(id int64) (router.Window, bool) {
	w, ok := s[id]
	if !ok {
		return nil, false
	}
	return w, true
}

type recordingHandler struct {
	wants bool

	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) WantsIndirectTouches() bool { return h.wants }

func (h *recordingHandler) record(name string, ev *router.TouchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, name)
}

func (h *recordingHandler) TouchesBegan(ev *router.TouchEvent)     { h.record("began", ev) }
func (h *recordingHandler) TouchesMoved(ev *router.TouchEvent)     { h.record("moved", ev) }
func (h *recordingHandler) TouchesEnded(ev *router.TouchEvent)     { h.record("ended", ev) }
func (h *recordingHandler) TouchesCancelled(ev *router.TouchEvent) { h.record("cancelled", ev) }

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type fixture struct {
	loop    *runloop.Loop
	sim     *tap.Simulated
	content *element
	router  *router.Router
	metrics *metrics.Registry
}

func newFixture(t *testing.T, recognizers ...any) *fixture {
	t.Helper()
	f := &fixture{
		loop:    runloop.New("main"),
		sim:     tap.NewSimulated(),
		content: &element{recognizers: recognizers},
		metrics: metrics.NewRegistry("test"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	r, err := router.New(router.Config{
		Backend: f.sim,
		Loop:    f.loop,
		Windows: screen{testWindow: {width: 100, height: 100, content: f.content}},
		Metrics: f.metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	f.router = r
	f.flush(t)
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.loop.Sync(ctx))
}

func (f *fixture) inject(t *testing.T, touches ...touch.Touch) {
	t.Helper()
	f.sim.InjectSample(touch.Sample{
		WindowID: testWindow,
		Location: touch.Point{X: 50, Y: 50},
		Touches:  touches,
	})
	f.flush(t)
}

func contact(id int64, phase touch.Phase, x, y float64) touch.Touch {
	return touch.Touch{Identity: id, Phase: phase, Position: touch.Point{X: x, Y: y}}
}

func TestForwardsPhasesInOrder(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.inject(t,
		contact(1, touch.PhaseEnded, 0.4, 0.5),
		contact(2, touch.PhaseMoved, 0.4, 0.6))
	f.inject(t,
		contact(1, touch.PhaseCancelled, 0.4, 0.5),
		contact(2, touch.PhaseBegan, 0.4, 0.6))

	assert.Equal(t, []string{"moved", "ended", "began", "cancelled"}, h.Calls())
	assert.Equal(t, uint64(4), f.router.Stats().Forwarded)
}

func TestStationaryOnlyForwardsNothing(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.inject(t,
		contact(1, touch.PhaseStationary, 0.4, 0.5),
		contact(2, touch.PhaseStationary, 0.4, 0.6))
	assert.Empty(t, h.Calls())
}

func TestTwoFingerGate(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.inject(t)
	f.inject(t, contact(1, touch.PhaseBegan, 0.1, 0.1))
	f.inject(t,
		contact(1, touch.PhaseBegan, 0.1, 0.1),
		contact(2, touch.PhaseBegan, 0.2, 0.1),
		contact(3, touch.PhaseBegan, 0.3, 0.1))

	assert.Empty(t, h.Calls())
	stats := f.router.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, int64(3), f.metrics.Snapshot()[`test_router_dropped_total{reason="finger_count"}`])
}

func TestHitTestMisses(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.sim.InjectSample(touch.Sample{
		WindowID: 7,
		Touches:  []touch.Touch{contact(1, touch.PhaseBegan, 0, 0), contact(2, touch.PhaseBegan, 0, 0)},
	})
	f.sim.InjectSample(touch.Sample{
		WindowID: testWindow,
		Location: touch.Point{X: 500, Y: 50},
		Touches:  []touch.Touch{contact(1, touch.PhaseBegan, 0, 0), contact(2, touch.PhaseBegan, 0, 0)},
	})
	f.flush(t)

	assert.Empty(t, h.Calls())
	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap[`test_router_dropped_total{reason="no_window"}`])
	assert.Equal(t, int64(1), snap[`test_router_dropped_total{reason="no_element"}`])
}

func TestOnlyOptedInHandlers(t *testing.T) {
	in := &recordingHandler{wants: true}
	out := &recordingHandler{wants: false}
	f := newFixture(t, out, "not a recognizer", in)

	f.inject(t,
		contact(1, touch.PhaseBegan, 0.1, 0.1),
		contact(2, touch.PhaseBegan, 0.2, 0.1))

	assert.Equal(t, []string{"began"}, in.Calls())
	assert.Empty(t, out.Calls())
}

func TestEveryHandlerReceivesMessages(t *testing.T) {
	a := &recordingHandler{wants: true}
	b := &recordingHandler{wants: true}
	f := newFixture(t, a, b)

	f.inject(t,
		contact(1, touch.PhaseMoved, 0.1, 0.1),
		contact(2, touch.PhaseMoved, 0.2, 0.1))

	assert.Equal(t, []string{"moved"}, a.Calls())
	assert.Equal(t, []string{"moved"}, b.Calls())
}

func TestDeliveryDuringEventTracking(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.loop.EnterMode(context.Background(), runloop.ModeEventTracking)
	f.inject(t,
		contact(1, touch.PhaseMoved, 0.1, 0.1),
		contact(2, touch.PhaseMoved, 0.2, 0.1))
	assert.Equal(t, []string{"moved"}, h.Calls())
}

func TestSetEnabled(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)

	f.router.SetEnabled(false)
	assert.False(t, f.router.Enabled())
	f.inject(t, contact(1, touch.PhaseBegan, 0.1, 0.1), contact(2, touch.PhaseBegan, 0.2, 0.1))
	assert.Empty(t, h.Calls())

	f.router.SetEnabled(true)
	f.inject(t, contact(1, touch.PhaseBegan, 0.1, 0.1), contact(2, touch.PhaseBegan, 0.2, 0.1))
	assert.Equal(t, []string{"began"}, h.Calls())
}

func TestClose(t *testing.T) {
	h := &recordingHandler{wants: true}
	f := newFixture(t, h)
	require.Equal(t, 1, f.sim.Live())

	require.NoError(t, f.router.Close())
	assert.Equal(t, 0, f.sim.Live())
	assert.False(t, f.router.Enabled())
	assert.NoError(t, f.router.Close())

	f.inject(t, contact(1, touch.PhaseBegan, 0.1, 0.1), contact(2, touch.PhaseBegan, 0.2, 0.1))
	assert.Empty(t, h.Calls())
}

func TestNewTapFailure(t *testing.T) {
	sim := tap.NewSimulated()
	sim.Deny(tap.ErrPermissionDenied)

	r, err := router.New(router.Config{
		Backend: sim,
		Loop:    runloop.New("main"),
		Windows: screen{},
	})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, tap.ErrTapCreation)
	assert.ErrorIs(t, err, tap.ErrPermissionDenied)
}

func TestNewValidation(t *testing.T) {
	_, err := router.New(router.Config{Loop: runloop.New("main"), Windows: screen{}})
	assert.ErrorIs(t, err, tap.ErrTapCreation)

	_, err = router.New(router.Config{Backend: tap.NewSimulated(), Windows: screen{}})
	assert.Error(t, err)

	_, err = router.New(router.Config{Backend: tap.NewSimulated(), Loop: runloop.New("main")})
	assert.Error(t, err)
}

func TestSwipeEndToEnd(t *testing.T) {
	swipe := gesture.NewSwipe(gesture.WithInset(touch.Size{Width: 0.5, Height: 0.5}))
	f := newFixture(t, swipe)

	f.inject(t, contact(1, touch.PhaseBegan, 0.3, 0.5), contact(2, touch.PhaseBegan, 0.3, 0.6))
	f.inject(t, contact(1, touch.PhaseMoved, 0.4, 0.5), contact(2, touch.PhaseMoved, 0.4, 0.6))

	// A three finger sample is never forwarded, so the swipe neither fails
	// nor changes.
	f.inject(t,
		contact(1, touch.PhaseMoved, 0.9, 0.5),
		contact(2, touch.PhaseMoved, 0.9, 0.6),
		contact(3, touch.PhaseBegan, 0.1, 0.1))

	f.inject(t, contact(1, touch.PhaseEnded, 0.4, 0.5), contact(2, touch.PhaseEnded, 0.4, 0.6))

	assert.Equal(t, gesture.StateEnded, swipe.State())
	assert.InDelta(t, 0.2, swipe.Value().X, 1e-9)
	assert.InDelta(t, 0.0, swipe.Value().Y, 1e-9)
}

func TestSingleFingerNeverBegins(t *testing.T) {
	swipe := gesture.NewSwipe()
	f := newFixture(t, swipe)

	f.inject(t, contact(1, touch.PhaseBegan, 0.3, 0.5))
	f.inject(t, contact(1, touch.PhaseMoved, 0.5, 0.5))
	assert.Equal(t, gesture.StatePossible, swipe.State())
}
