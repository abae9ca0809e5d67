// Package tap provides a passive, process-wide tap on the system input event
// stream.
//
// A Handle owns exactly one registration with a Backend. The backend delivers
// raw events on a goroutine of its choosing; the handle filters them, recovers
// from system auto-disable notifications and hands decoded touch samples to a
// single callback, synchronously, on that same goroutine.
//
// Platform support:
//   - macOS: CGEventTap (requires Accessibility / Input Monitoring approval)
//   - Linux: /dev/input/event* multitouch devices (requires the input group)
//   - elsewhere: creation fails with ErrTapCreation
package tap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"swipetap/internal/metrics"
	"swipetap/internal/touch"
)

// Location selects where in the system event pipeline a tap is installed.
type Location int

const (
	LocationHID Location = iota
	LocationSession
	LocationAnnotatedSession
)

// Position selects where a tap is inserted relative to existing taps.
type Position int

const (
	PositionHeadInsert Position = iota
	PositionTailAppend
)

// Placement describes how a tap is installed.
type Placement struct {
	Location Location
	Position Position
	// ListenOnly taps observe events and can never modify or swallow them.
	ListenOnly bool
}

// DefaultPlacement is a passive tap appended after every other tap of the
// annotated session stream, so it sees events the way applications do.
var DefaultPlacement = Placement{
	Location:   LocationAnnotatedSession,
	Position:   PositionTailAppend,
	ListenOnly: true,
}

// RawEvent is an undecoded event as produced by a backend.
type RawEvent struct {
	Kind EventKind
	// Payload is backend specific and only meaningful to its Decode.
	Payload any
}

// Backend is the system input subscription API.
type Backend interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Register installs a tap for the kinds in mask. The backend calls
	// deliver for every matching event and for auto-disable notifications,
	// on any goroutine, until the registration is unregistered.
	Register(mask uint64, placement Placement, deliver func(RawEvent)) (Registration, error)

	// Decode converts a raw event into a touch sample.
	Decode(ev RawEvent) (touch.Sample, error)
}

// Registration is a live tap owned by a Handle.
type Registration interface {
	// SetEnabled pauses or resumes delivery without removing the tap.
	SetEnabled(enabled bool) error
	// Unregister removes the tap. No deliveries start after it returns.
	Unregister() error
}

// Callback receives decoded samples.
type Callback func(touch.Sample)

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the handle logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics records tap activity in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(h *Handle) {
		h.metrics = metrics.NewTapMetrics(r)
	}
}

// WithPlacement overrides DefaultPlacement.
func WithPlacement(p Placement) Option {
	return func(h *Handle) {
		h.placement = p
	}
}

// Handle is an event tap registration plus its delivery callback.
type Handle struct {
	kinds     KindSet
	backend   Backend
	placement Placement
	callback  Callback
	logger    *slog.Logger
	metrics   *metrics.TapMetrics

	enabled   atomic.Bool
	destroyed atomic.Bool

	// mu serializes calls into the registration.
	mu  sync.Mutex
	reg Registration
}

// Create registers a tap for kinds with backend and starts delivering decoded
// samples to cb. The tap starts enabled.
//
// Failures to install the tap are returned wrapped in ErrTapCreation.
func Create(backend Backend, kinds KindSet, cb Callback, opts ...Option) (*Handle, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrTapCreation)
	}
	if kinds.Len() == 0 {
		return nil, ErrEmptyKindSet
	}
	if cb == nil {
		return nil, errors.New("tap callback must not be nil")
	}

	h := &Handle{
		kinds:     kinds,
		backend:   backend,
		placement: DefaultPlacement,
		callback:  cb,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewTapMetrics(nil)
	}
	h.enabled.Store(true)

	// Hold mu so an early auto-disable cannot observe a half-built handle.
	h.mu.Lock()
	defer h.mu.Unlock()

	reg, err := backend.Register(kinds.Mask(), h.placement, h.deliver)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTapCreation, backend.Name(), err)
	}
	h.reg = reg

	h.logger.Debug("event tap created",
		"backend", backend.Name(),
		"kinds", kinds.String(),
		"mask", fmt.Sprintf("%#x", kinds.Mask()),
	)
	return h, nil
}

// Kinds returns the kinds the tap was created for.
func (h *Handle) Kinds() KindSet {
	return h.kinds
}

// Enabled reports the last requested enabled state.
func (h *Handle) Enabled() bool {
	return h.enabled.Load()
}

// SetEnabled pauses or resumes delivery. The registration is kept alive, and
// the requested state is re-applied whenever the system disables the tap.
// It takes effect for the next delivered event.
func (h *Handle) SetEnabled(enabled bool) {
	if h.destroyed.Load() {
		return
	}
	h.enabled.Store(enabled)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reg == nil {
		return
	}
	if err := h.reg.SetEnabled(enabled); err != nil {
		h.logger.Warn("event tap enable failed", "enabled", enabled, "error", err)
	}
}

// Destroy unregisters the tap. It is safe to call more than once.
// Callers must have unbound the tap from every run loop mode first.
func (h *Handle) Destroy() error {
	if h.destroyed.Swap(true) {
		return nil
	}
	h.enabled.Store(false)

	h.mu.Lock()
	reg := h.reg
	h.reg = nil
	h.mu.Unlock()

	if reg == nil {
		return nil
	}
	if err := reg.Unregister(); err != nil {
		return fmt.Errorf("unregister event tap: %w", err)
	}
	h.logger.Debug("event tap destroyed", "backend", h.backend.Name())
	return nil
}

// deliver is invoked by the backend for every raw event.
func (h *Handle) deliver(ev RawEvent) {
	if h.destroyed.Load() {
		return
	}
	h.metrics.Events.Inc()

	if ev.Kind.IsAutoDisable() {
		h.reassert(ev.Kind)
		return
	}
	if !h.kinds.Contains(ev.Kind) {
		h.metrics.Dropped(metrics.ReasonUnbound).Inc()
		return
	}
	if !h.enabled.Load() {
		h.metrics.Dropped(metrics.ReasonDisabled).Inc()
		return
	}

	sample, err := h.backend.Decode(ev)
	if err != nil {
		h.metrics.Dropped(metrics.ReasonDecode).Inc()
		h.logger.Debug("dropping undecodable event", "kind", ev.Kind.String(), "error", err)
		return
	}
	h.callback(sample)
}

// reassert re-applies the requested enabled state after the system switched
// the tap off.
func (h *Handle) reassert(kind EventKind) {
	enabled := h.enabled.Load()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reg == nil {
		return
	}
	if err := h.reg.SetEnabled(enabled); err != nil {
		h.logger.Warn("event tap re-enable failed", "reason", kind.String(), "error", err)
		return
	}
	h.metrics.Reenabled.Inc()
	h.logger.Info("event tap re-asserted", "reason", kind.String(), "enabled", enabled)
}
