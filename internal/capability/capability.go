// Package capability owns the process-wide indirect touch switch.
//
// A Context holds at most one touch router. Enable creates it and Disable
// closes it; elements opt in individually through
// router.IndirectTouchHandler.WantsIndirectTouches.
package capability

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"swipetap/internal/metrics"
	"swipetap/internal/router"
	"swipetap/internal/runloop"
	"swipetap/internal/tap"
)

// ErrUnavailable is returned by Enable when no event tap could be created.
var ErrUnavailable = errors.New("indirect touch unavailable")

// Config configures a Context.
type Config struct {
	Backend   tap.Backend
	Loop      *runloop.Loop
	Windows   router.WindowServer
	Placement *tap.Placement
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// Context is the indirect touch capability of one application.
type Context struct {
	cfg     Config
	logger  *slog.Logger
	enabled *metrics.Gauge

	mu     sync.Mutex
	router *router.Router
	paused bool
}

// New creates a disabled context.
func New(cfg Config) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		cfg:     cfg,
		logger:  logger,
		enabled: metrics.CapabilityEnabled(cfg.Metrics),
	}
}

// Enable starts routing indirect touches. It is a no-op when already
// enabled. If the system refuses the event tap the context stays disabled
// and the returned error wraps both ErrUnavailable and the cause.
func (c *Context) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.router != nil {
		return nil
	}

	r, err := router.New(router.Config{
		Backend:   c.cfg.Backend,
		Loop:      c.cfg.Loop,
		Windows:   c.cfg.Windows,
		Placement: c.cfg.Placement,
		Logger:    c.logger,
		Metrics:   c.cfg.Metrics,
	})
	if err != nil {
		if errors.Is(err, tap.ErrTapCreation) {
			c.logger.Warn("indirect touch unavailable", "error", err)
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("enable indirect touch: %w", err)
	}
	if c.paused {
		r.SetEnabled(false)
	}
	c.router = r
	c.enabled.SetBool(true)
	return nil
}

// Disable stops routing and releases the router. It is a no-op when already
// disabled.
func (c *Context) Disable() error {
	c.mu.Lock()
	r := c.router
	c.router = nil
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	c.enabled.SetBool(false)
	return r.Close()
}

// Enabled reports whether a router is active.
func (c *Context) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router != nil
}

// Router returns the active router, or nil when disabled.
func (c *Context) Router() *router.Router {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router
}

// SetPaused suspends delivery without tearing the router down, for example
// while the user session is inactive. The setting survives Disable/Enable.
func (c *Context) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused == paused {
		return
	}
	c.paused = paused
	if c.router != nil {
		c.router.SetEnabled(!paused)
	}
	c.logger.Info("indirect touch paused", "paused", paused)
}

// Paused reports the last SetPaused value.
func (c *Context) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
