// Package runloop provides a single-goroutine event loop with named modes.
//
// A Loop owns one goroutine, locked to its OS thread, that runs posted tasks
// and performs signalled Sources one after another. Sources are bound to one
// or more modes and are only performed while the loop is in one of them;
// signals that arrive in another mode wait until the loop enters a bound mode.
//
// Membership changes must happen on the loop goroutine. Bind and Unbind
// called from a task the loop is running take effect immediately; called
// from anywhere else they are posted to the loop.
package runloop

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

// Mode names an execution phase of the loop.
type Mode string

const (
	// ModeDefault is the idle processing mode.
	ModeDefault Mode = "kCFRunLoopDefaultMode"
	// ModeEventTracking is entered while the UI runs a modal drag or
	// tracking loop.
	ModeEventTracking Mode = "NSEventTrackingRunLoopMode"
)

// ModeCommon is the set of modes an input source normally binds to.
var ModeCommon = []Mode{ModeDefault, ModeEventTracking}

// DefaultPendingLimit is the number of undelivered signals kept per source.
const DefaultPendingLimit = 64

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("run loop already running")

// PanicHandler receives panics raised by tasks and sources.
type PanicHandler func(value any, info map[string]any)

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *slog.Logger) Option {
	return func(loop *Loop) {
		if l != nil {
			loop.logger = l
		}
	}
}

// WithPendingLimit bounds the signals queued per source. Values below 1 are
// ignored.
func WithPendingLimit(n int) Option {
	return func(loop *Loop) {
		if n > 0 {
			loop.pendingLimit = n
		}
	}
}

// WithPanicHandler recovers panics in tasks and sources and reports them to h
// instead of crashing the loop.
func WithPanicHandler(h PanicHandler) Option {
	return func(loop *Loop) {
		loop.onPanic = h
	}
}

type ctxKey struct{}

// FromContext returns the loop running the task that received ctx.
func FromContext(ctx context.Context) (*Loop, bool) {
	l, ok := ctx.Value(ctxKey{}).(*Loop)
	return l, ok
}

// Loop is a serial executor with modes.
type Loop struct {
	name         string
	logger       *slog.Logger
	pendingLimit int
	onPanic      PanicHandler

	mu     sync.Mutex
	tasks  []func(context.Context)
	ready  []*Source
	wake   chan struct{}
	mode   atomic.Value // Mode
	active atomic.Bool

	// Owned by the loop goroutine.
	modes   []Mode
	waiting []*Source
	sources map[*Source]struct{}
}

// New creates a loop in ModeDefault. It does nothing until Run is called,
// but tasks and signals may be queued before that.
func New(name string, opts ...Option) *Loop {
	l := &Loop{
		name:         name,
		logger:       slog.Default(),
		pendingLimit: DefaultPendingLimit,
		wake:         make(chan struct{}, 1),
		modes:        []Mode{ModeDefault},
		sources:      make(map[*Source]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("loop", name)
	l.mode.Store(ModeDefault)
	return l
}

// Name returns the loop name.
func (l *Loop) Name() string {
	return l.name
}

// Mode returns the current mode. It may be called from any goroutine.
func (l *Loop) Mode() Mode {
	return l.mode.Load().(Mode)
}

// Running reports whether Run is executing.
func (l *Loop) Running() bool {
	return l.active.Load()
}

// Run services the loop on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if !l.active.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.active.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	lctx := context.WithValue(ctx, ctxKey{}, l)
	l.logger.Debug("run loop started")
	defer l.logger.Debug("run loop stopped")

	for {
		l.drain(lctx)
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Post schedules fn to run on the loop goroutine. It never blocks.
func (l *Loop) Post(fn func(ctx context.Context)) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.notify()
}

// Sync blocks until every task posted before it has run, or ctx is done.
// It must not be called from the loop goroutine.
func (l *Loop) Sync(ctx context.Context) error {
	done := make(chan struct{})
	l.Post(func(context.Context) { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onLoop reports whether ctx belongs to a task running on l.
func (l *Loop) onLoop(ctx context.Context) bool {
	owner, ok := FromContext(ctx)
	return ok && owner == l
}

// perform runs fn now if ctx is on the loop, otherwise posts it.
func (l *Loop) perform(ctx context.Context, fn func(ctx context.Context)) {
	if l.onLoop(ctx) {
		fn(ctx)
		return
	}
	l.Post(fn)
}

// EnterMode pushes mode; sources bound to it become eligible.
func (l *Loop) EnterMode(ctx context.Context, mode Mode) {
	l.perform(ctx, func(context.Context) {
		l.modes = append(l.modes, mode)
		l.mode.Store(mode)
		l.logger.Debug("entered mode", "mode", mode)
	})
}

// ExitMode pops the innermost mode. The outermost ModeDefault is never popped.
func (l *Loop) ExitMode(ctx context.Context) {
	l.perform(ctx, func(context.Context) {
		if len(l.modes) <= 1 {
			return
		}
		l.modes = l.modes[:len(l.modes)-1]
		l.mode.Store(l.modes[len(l.modes)-1])
		l.logger.Debug("exited mode", "mode", l.modes[len(l.modes)-1])
	})
}

// Bind adds src to each of modes.
func (l *Loop) Bind(ctx context.Context, src *Source, modes ...Mode) {
	l.perform(ctx, func(context.Context) {
		if owner := src.loop.Load(); owner != nil && owner != l {
			l.logger.Warn("source already bound to another loop", "source", src.name, "owner", owner.name)
			return
		}
		for _, m := range modes {
			src.modes[m] = struct{}{}
		}
		if len(src.modes) > 0 {
			l.sources[src] = struct{}{}
			src.loop.Store(l)
		}
		l.logger.Debug("source bound", "source", src.name, "modes", modes)
	})
}

// Unbind removes src from each of modes. A source left without modes stops
// accepting signals and its pending signals are discarded.
func (l *Loop) Unbind(ctx context.Context, src *Source, modes ...Mode) {
	l.perform(ctx, func(context.Context) {
		if src.loop.Load() != l {
			return
		}
		for _, m := range modes {
			delete(src.modes, m)
		}
		if len(src.modes) == 0 {
			delete(l.sources, src)
			src.loop.Store(nil)
			l.waiting = slices.DeleteFunc(l.waiting, func(s *Source) bool { return s == src })
			src.discard()
		}
		l.logger.Debug("source unbound", "source", src.name, "modes", modes)
	})
}

// bound reports whether src is bound to mode. Loop goroutine only.
func (l *Loop) bound(src *Source, mode Mode) bool {
	_, ok := src.modes[mode]
	return ok
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// schedule marks src as having pending signals.
func (l *Loop) schedule(src *Source) {
	l.mu.Lock()
	l.ready = append(l.ready, src)
	l.mu.Unlock()
	l.notify()
}

func (l *Loop) drain(ctx context.Context) {
	for {
		l.mu.Lock()
		tasks, ready := l.tasks, l.ready
		l.tasks, l.ready = nil, nil
		l.mu.Unlock()

		if len(tasks) == 0 && len(ready) == 0 {
			return
		}
		for _, src := range ready {
			if src.loop.Load() != l {
				src.discard()
				continue
			}
			if !slices.Contains(l.waiting, src) {
				l.waiting = append(l.waiting, src)
			}
		}
		l.service(ctx)

		// A task may change the mode or membership, so sources are
		// re-examined after each one.
		for _, fn := range tasks {
			l.call(map[string]any{"loop": l.name, "type": "task"}, func() { fn(ctx) })
			l.service(ctx)
		}
	}
}

// service performs every waiting source bound to the current mode.
func (l *Loop) service(ctx context.Context) {
	if len(l.waiting) == 0 {
		return
	}
	mode := l.modes[len(l.modes)-1]
	kept := l.waiting[:0]
	var due []*Source
	for _, src := range l.waiting {
		if l.bound(src, mode) {
			due = append(due, src)
		} else {
			kept = append(kept, src)
		}
	}
	l.waiting = kept
	for _, src := range due {
		src.run(ctx, l)
	}
}

func (l *Loop) call(info map[string]any, fn func()) {
	if l.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("panic on run loop", "panic", r)
				l.onPanic(r, info)
			}
		}()
	}
	fn()
}
