package runloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New("test", opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("run loop did not stop")
		}
	})
	return l
}

func flush(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Sync(ctx))
}

type collector struct {
	mu     sync.Mutex
	values []any
	onLoop []bool
}

func (c *collector) perform(l *Loop) func(context.Context, any) {
	return func(ctx context.Context, v any) {
		owner, ok := FromContext(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.values = append(c.values, v)
		c.onLoop = append(c.onLoop, ok && owner == l)
	}
}

func (c *collector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.values...)
}

func TestPostRunsInOrderOnLoop(t *testing.T) {
	l := startLoop(t)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func(ctx context.Context) {
			_, ok := FromContext(ctx)
			assert.True(t, ok)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	flush(t, l)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestRunTwice(t *testing.T) {
	l := startLoop(t)
	flush(t, l)
	assert.True(t, l.Running())
	assert.ErrorIs(t, l.Run(context.Background()), ErrRunning)
}

func TestSignalDeliveredOnLoop(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeCommon...)
	flush(t, l)

	assert.True(t, src.Signal("a"))
	assert.True(t, src.Signal("b"))
	flush(t, l)

	assert.Equal(t, []any{"a", "b"}, c.snapshot())
	for _, on := range c.onLoop {
		assert.True(t, on, "perform must run on the loop goroutine")
	}
	assert.Equal(t, SourceStats{Signalled: 2, Performed: 2}, src.Stats())
}

func TestSignalUnboundIsDropped(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	assert.False(t, src.Signal("a"))
	flush(t, l)
	assert.Empty(t, c.snapshot())
	assert.Equal(t, uint64(1), src.Stats().Dropped)
}

func TestBindIsAsyncOffLoop(t *testing.T) {
	l := New("idle")
	src := NewSource("touch", func(context.Context, any) {})

	// Not running: the bind is queued, not applied.
	l.Bind(context.Background(), src, ModeDefault)
	assert.False(t, src.Signal("early"))
}

func TestBindIsDirectOnLoop(t *testing.T) {
	l := startLoop(t)
	src := NewSource("touch", func(context.Context, any) {})

	var accepted bool
	l.Post(func(ctx context.Context) {
		l.Bind(ctx, src, ModeDefault)
		accepted = src.Signal("now")
	})
	flush(t, l)
	assert.True(t, accepted)
}

func TestSignalWaitsForBoundMode(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeDefault)
	l.EnterMode(context.Background(), ModeEventTracking)
	flush(t, l)
	assert.Equal(t, ModeEventTracking, l.Mode())

	src.Signal("during-drag")
	flush(t, l)
	assert.Empty(t, c.snapshot(), "source not bound to tracking mode")
	assert.Equal(t, 1, src.Pending())

	l.ExitMode(context.Background())
	flush(t, l)
	assert.Equal(t, ModeDefault, l.Mode())
	assert.Equal(t, []any{"during-drag"}, c.snapshot())
}

func TestTrackingModeDelivery(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeCommon...)
	l.EnterMode(context.Background(), ModeEventTracking)
	flush(t, l)

	src.Signal(1)
	flush(t, l)
	assert.Equal(t, []any{1}, c.snapshot())
}

func TestExitModeKeepsDefault(t *testing.T) {
	l := startLoop(t)
	l.ExitMode(context.Background())
	l.ExitMode(context.Background())
	flush(t, l)
	assert.Equal(t, ModeDefault, l.Mode())
}

func TestUnbindDiscardsPending(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeEventTracking)
	flush(t, l)
	src.Signal("parked")
	flush(t, l)
	require.Equal(t, 1, src.Pending())

	l.Unbind(context.Background(), src, ModeEventTracking)
	flush(t, l)
	assert.Equal(t, 0, src.Pending())
	assert.False(t, src.Signal("late"))
	assert.Empty(t, c.snapshot())
}

func TestPartialUnbindKeepsSource(t *testing.T) {
	l := startLoop(t)
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeCommon...)
	l.Unbind(context.Background(), src, ModeEventTracking)
	flush(t, l)

	assert.True(t, src.Signal("x"))
	flush(t, l)
	assert.Equal(t, []any{"x"}, c.snapshot())
}

func TestPendingLimitDropsOldest(t *testing.T) {
	l := startLoop(t, WithPendingLimit(2))
	c := &collector{}
	src := NewSource("touch", c.perform(l))

	l.Bind(context.Background(), src, ModeEventTracking)
	flush(t, l)
	src.Signal(1)
	src.Signal(2)
	src.Signal(3)

	l.EnterMode(context.Background(), ModeEventTracking)
	flush(t, l)
	assert.Equal(t, []any{2, 3}, c.snapshot())
	assert.Equal(t, uint64(1), src.Stats().Dropped)
}

func TestPanicHandler(t *testing.T) {
	var (
		mu     sync.Mutex
		caught []any
	)
	l := startLoop(t, WithPanicHandler(func(v any, info map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		caught = append(caught, v)
		assert.Equal(t, "test", info["loop"])
	}))

	l.Post(func(context.Context) { panic("boom") })
	flush(t, l)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{"boom"}, caught)
}

func TestSyncTimeout(t *testing.T) {
	l := New("stopped")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Sync(ctx), context.DeadlineExceeded)
}
