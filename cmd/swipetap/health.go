package main

import (
	"context"

	"swipetap/internal/health"
)

// newHealth registers the checks that decide whether swipes can reach the
// recognizer.
func newHealth(a *app, controlWanted func() bool) *health.Checker {
	c := health.NewChecker()

	c.RegisterFunc("runloop", true, func(context.Context) health.CheckResult {
		if !a.loop.Running() {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: "run loop stopped"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Details: map[string]any{"mode": a.loop.Mode()}}
	})

	c.RegisterFunc("capability", true, func(context.Context) health.CheckResult {
		a.mu.Lock()
		wanted := a.cfg.Tap.Enabled
		a.mu.Unlock()

		details := map[string]any{"backend": a.backend.Name(), "enabled": a.cap.Enabled(), "paused": a.cap.Paused()}
		switch {
		case wanted && !a.cap.Enabled():
			return health.CheckResult{Status: health.StatusUnhealthy, Message: "event tap not active", Details: details}
		case a.cap.Paused():
			return health.CheckResult{Status: health.StatusDegraded, Message: "delivery paused", Details: details}
		}
		return health.CheckResult{Status: health.StatusHealthy, Details: details}
	})

	c.RegisterFunc("router_queue", false, health.QueueCheck(func() int {
		if r := a.cap.Router(); r != nil {
			return r.Stats().Pending
		}
		return 0
	}, a.pendingLimit()))

	c.RegisterFunc("control", false, func(context.Context) health.CheckResult {
		if controlWanted() && a.events == nil {
			return health.CheckResult{Status: health.StatusDegraded, Message: "control socket not serving"}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	})
	return c
}

func (a *app) pendingLimit() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.RunLoop.PendingLimit
}
