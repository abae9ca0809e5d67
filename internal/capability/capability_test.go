package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swipetap/internal/metrics"
	"swipetap/internal/router"
	"swipetap/internal/runloop"
	"swipetap/internal/tap"
)

type noWindows struct{}

func (noWindows) Window(int64) (router.Window, bool) { return nil, false }

func newContext(t *testing.T, sim *tap.Simulated, reg *metrics.Registry) *Context {
	t.Helper()
	loop := runloop.New("main")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := New(Config{Backend: sim, Loop: loop, Windows: noWindows{}, Metrics: reg})
	t.Cleanup(func() { _ = c.Disable() })
	return c
}

func TestEnableDisable(t *testing.T) {
	sim := tap.NewSimulated()
	reg := metrics.NewRegistry("test")
	c := newContext(t, sim, reg)

	assert.False(t, c.Enabled())
	assert.Nil(t, c.Router())

	require.NoError(t, c.Enable())
	assert.True(t, c.Enabled())
	assert.NotNil(t, c.Router())
	assert.Equal(t, 1, sim.Live())
	assert.Equal(t, int64(1), reg.Snapshot()["test_capability_enabled"])

	require.NoError(t, c.Enable(), "enable is idempotent")
	assert.Equal(t, 1, sim.Total(), "only one router per context")

	require.NoError(t, c.Disable())
	assert.False(t, c.Enabled())
	assert.Equal(t, 0, sim.Live())
	assert.Equal(t, int64(0), reg.Snapshot()["test_capability_enabled"])

	require.NoError(t, c.Disable(), "disable is idempotent")
}

func TestEnableUnavailable(t *testing.T) {
	sim := tap.NewSimulated()
	sim.Deny(tap.ErrPermissionDenied)
	c := newContext(t, sim, nil)

	err := c.Enable()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, tap.ErrPermissionDenied)
	assert.False(t, c.Enabled())

	// Permission granted later.
	sim.Deny(nil)
	require.NoError(t, c.Enable())
	assert.True(t, c.Enabled())
}

func TestReenableCreatesFreshRouter(t *testing.T) {
	sim := tap.NewSimulated()
	c := newContext(t, sim, nil)

	require.NoError(t, c.Enable())
	first := c.Router()
	require.NoError(t, c.Disable())
	require.NoError(t, c.Enable())

	assert.NotSame(t, first, c.Router())
	assert.Equal(t, 2, sim.Total())
	assert.Equal(t, 1, sim.Live())
}

func TestSetPaused(t *testing.T) {
	sim := tap.NewSimulated()
	c := newContext(t, sim, nil)

	c.SetPaused(true)
	require.NoError(t, c.Enable())
	assert.False(t, sim.Enabled(), "paused before enable")
	assert.False(t, c.Router().Enabled())

	c.SetPaused(false)
	assert.True(t, sim.Enabled())
	assert.False(t, c.Paused())

	c.SetPaused(true)
	assert.False(t, sim.Enabled())
}

func TestAutoDisableWhilePaused(t *testing.T) {
	sim := tap.NewSimulated()
	c := newContext(t, sim, nil)
	require.NoError(t, c.Enable())

	c.SetPaused(true)
	sim.AutoDisable(tap.KindTapDisabledByUserInput)
	assert.False(t, sim.Enabled())

	c.SetPaused(false)
	sim.AutoDisable(tap.KindTapDisabledByTimeout)
	assert.Eventually(t, sim.Enabled, time.Second, 10*time.Millisecond)
}
