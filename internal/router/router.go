// Package router dispatches indirect trackpad touches to gesture recognizers.
//
// A Router owns one event tap for touch events. Samples from the tap are
// handed to a run loop source; on the loop goroutine each two-finger sample
// is hit-tested against the window under the pointer and split into
// began/moved/ended/cancelled messages for every recognizer of the hit
// element that opted in to indirect touches.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"swipetap/internal/metrics"
	"swipetap/internal/runloop"
	"swipetap/internal/tap"
	"swipetap/internal/touch"
)

// SwipeFingers is the number of contacts a sample must carry to be routed.
const SwipeFingers = 2

var touchKinds = tap.MustKindSet(tap.KindTouches)

// phaseOrder is the order phase messages are sent within one sample.
var phaseOrder = []touch.Phase{
	touch.PhaseBegan,
	touch.PhaseMoved,
	touch.PhaseEnded,
	touch.PhaseCancelled,
}

// Config configures a Router.
type Config struct {
	Backend tap.Backend
	Loop    *runloop.Loop
	Windows WindowServer

	// Placement overrides tap.DefaultPlacement when non-nil.
	Placement *tap.Placement
	Logger    *slog.Logger
	Metrics   *metrics.Registry
	Clock     func() time.Time
}

// Stats counts router activity.
type Stats struct {
	Received  uint64
	Dropped   uint64
	Forwarded uint64
	Pending   int
}

// Router is the touch dispatcher. Create it with New and release it with
// Close.
type Router struct {
	loop    *runloop.Loop
	windows WindowServer
	logger  *slog.Logger
	metrics *metrics.RouterMetrics
	clock   func() time.Time

	handle *tap.Handle
	source *runloop.Source
	closed atomic.Bool

	received  atomic.Uint64
	dropped   atomic.Uint64
	forwarded atomic.Uint64
}

// New installs the touch tap and binds it to the loop's default and event
// tracking modes. The binding is applied asynchronously on the loop.
// Tap failures are returned wrapped in tap.ErrTapCreation.
func New(cfg Config) (*Router, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: no backend", tap.ErrTapCreation)
	}
	if cfg.Loop == nil {
		return nil, errors.New("router requires a run loop")
	}
	if cfg.Windows == nil {
		return nil, errors.New("router requires a window server")
	}

	r := &Router{
		loop:    cfg.Loop,
		windows: cfg.Windows,
		logger:  cfg.Logger,
		metrics: metrics.NewRouterMetrics(cfg.Metrics),
		clock:   cfg.Clock,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	r.source = runloop.NewSource("indirect-touch", r.perform)

	opts := []tap.Option{tap.WithLogger(r.logger), tap.WithMetrics(cfg.Metrics)}
	if cfg.Placement != nil {
		opts = append(opts, tap.WithPlacement(*cfg.Placement))
	}
	h, err := tap.Create(cfg.Backend, touchKinds, r.signal, opts...)
	if err != nil {
		return nil, err
	}
	r.handle = h

	r.loop.Bind(context.Background(), r.source, runloop.ModeCommon...)
	r.logger.Info("touch router started", "backend", cfg.Backend.Name(), "loop", r.loop.Name())
	return r, nil
}

// SetEnabled pauses or resumes the tap. It applies to the next event.
func (r *Router) SetEnabled(enabled bool) {
	if r.closed.Load() {
		return
	}
	r.handle.SetEnabled(enabled)
}

// Enabled reports whether the tap is delivering.
func (r *Router) Enabled() bool {
	return !r.closed.Load() && r.handle.Enabled()
}

// Close disables the tap, unbinds it from the loop and destroys it.
// Dispatches already running complete; queued samples are discarded.
func (r *Router) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.handle.SetEnabled(false)
	r.loop.Unbind(context.Background(), r.source, runloop.ModeCommon...)
	if err := r.handle.Destroy(); err != nil {
		return fmt.Errorf("close touch router: %w", err)
	}
	r.logger.Info("touch router stopped")
	return nil
}

// Stats returns the router counters.
func (r *Router) Stats() Stats {
	return Stats{
		Received:  r.received.Load(),
		Dropped:   r.dropped.Load(),
		Forwarded: r.forwarded.Load(),
		Pending:   r.source.Pending(),
	}
}

// signal runs on the tap's delivery goroutine.
func (r *Router) signal(sample touch.Sample) {
	r.received.Add(1)
	if !r.source.Signal(sample) {
		r.drop(metrics.ReasonUnbound)
	}
}

// perform runs on the loop goroutine.
func (r *Router) perform(_ context.Context, v any) {
	if r.closed.Load() {
		return
	}
	sample, ok := v.(touch.Sample)
	if !ok {
		r.drop(metrics.ReasonDecode)
		return
	}

	start := r.clock()
	r.Dispatch(sample)
	r.metrics.Dispatch.ObserveDuration(r.clock().Sub(start))
}

// Dispatch routes one sample. It must be called on the loop goroutine.
func (r *Router) Dispatch(sample touch.Sample) {
	if n := sample.Count(touch.PhaseAny); n != SwipeFingers {
		r.drop(metrics.ReasonFingerCount)
		return
	}

	win, ok := r.windows.Window(sample.WindowID)
	if !ok {
		r.drop(metrics.ReasonNoWindow)
		r.logger.Debug("no window for touch sample", "window", sample.WindowID)
		return
	}
	el, ok := win.HitTest(sample.Location)
	if !ok {
		r.drop(metrics.ReasonNoElement)
		r.logger.Debug("no element under pointer", "window", sample.WindowID, "location", sample.Location.String())
		return
	}

	handlers := interested(el)
	if len(handlers) == 0 {
		return
	}

	now := r.clock()
	for _, h := range handlers {
		for _, phase := range phaseOrder {
			if !sample.Has(phase) {
				continue
			}
			ev := &TouchEvent{Sample: sample, Element: el, Phase: phase, Time: now}
			switch phase {
			case touch.PhaseBegan:
				h.TouchesBegan(ev)
			case touch.PhaseMoved:
				h.TouchesMoved(ev)
			case touch.PhaseEnded:
				h.TouchesEnded(ev)
			case touch.PhaseCancelled:
				h.TouchesCancelled(ev)
			}
			r.forwarded.Add(1)
			r.metrics.Forwarded(phase).Inc()
		}
	}
}

func (r *Router) drop(reason string) {
	r.dropped.Add(1)
	r.metrics.Dropped(reason).Inc()
}

// interested returns the recognizers of el that accept indirect touches.
func interested(el Element) []IndirectTouchHandler {
	var out []IndirectTouchHandler
	for _, rec := range el.GestureRecognizers() {
		h, ok := rec.(IndirectTouchHandler)
		if ok && h.WantsIndirectTouches() {
			out = append(out, h)
		}
	}
	return out
}
