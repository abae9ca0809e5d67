package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"swipetap/internal/capability"
	"swipetap/internal/config"
	"swipetap/internal/gesture"
	"swipetap/internal/ipc"
	"swipetap/internal/logging"
)

// controlSource names the control socket in the audit trail.
const controlSource = "control_socket"

var _ ipc.Controller = (*app)(nil)

func gestureStatus(s *gesture.Swipe) ipc.GestureStatus {
	v := s.Value()
	inset := s.DetectionInset()
	return ipc.GestureStatus{
		State:    s.State().String(),
		ValueX:   v.X,
		ValueY:   v.Y,
		Velocity: s.Velocity(),
		InsetX:   inset.Width,
		InsetY:   inset.Height,
	}
}

// Status reports the capability, router counters and a recognizer
// snapshot taken on the run loop.
func (a *app) Status(ctx context.Context) (ipc.StatusResponse, error) {
	st := ipc.StatusResponse{
		Backend: a.backend.Name(),
		Enabled: a.cap.Enabled(),
		Paused:  a.cap.Paused(),
	}
	if r := a.cap.Router(); r != nil {
		stats := r.Stats()
		st.Router = ipc.RouterStats{
			Received:  stats.Received,
			Dropped:   stats.Dropped,
			Forwarded: stats.Forwarded,
			Pending:   stats.Pending,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var g ipc.GestureStatus
	done := make(chan struct{})
	a.loop.Post(func(context.Context) {
		g = gestureStatus(a.swipe)
		close(done)
	})
	select {
	case <-done:
		st.Gesture = g
	case <-ctx.Done():
		return st, fmt.Errorf("gesture snapshot: %w", ctx.Err())
	}
	return st, nil
}

// SetEnabled enables or disables routing on behalf of a control client.
func (a *app) SetEnabled(enabled bool) error {
	request := "disable"
	var err error
	if enabled {
		request = "enable"
		err = a.enable()
	} else {
		err = a.disable()
	}
	a.record(func(l *logging.AuditLogger) error { return l.LogControl(request, controlSource, err) })
	if errors.Is(err, capability.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ipc.ErrCapabilityUnavailable, err)
	}
	return err
}

// SetPaused pauses or resumes delivery on behalf of a control client.
func (a *app) SetPaused(paused bool) {
	request := "resume"
	if paused {
		request = "pause"
	}
	a.cap.SetPaused(paused)
	a.record(func(l *logging.AuditLogger) error { return l.LogControl(request, controlSource, nil) })
	a.publishCapability(request)
}

func (a *app) Capability() ipc.CapabilityResponse {
	return ipc.CapabilityResponse{Enabled: a.cap.Enabled(), Paused: a.cap.Paused()}
}

// Config returns the effective configuration as JSON.
func (a *app) Config() (string, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, err := json.Marshal(a.cfg)
	if err != nil {
		return "", nil, fmt.Errorf("encode config: %w", err)
	}
	return a.path, raw, nil
}

// Reload re-reads the config file and applies it like a file change.
func (a *app) Reload() error {
	err := a.reload()
	a.record(func(l *logging.AuditLogger) error { return l.LogControl("reload", controlSource, err) })
	return err
}

func (a *app) reload() error {
	a.mu.Lock()
	path, watcher := a.path, a.watcher
	a.mu.Unlock()

	if watcher != nil {
		return watcher.Reload()
	}
	if path == "" {
		return errors.New("no config file")
	}
	next, err := config.Load(path)
	if err != nil {
		return err
	}
	if issues := config.Check(next); issues.HasErrors() {
		return fmt.Errorf("invalid config: %v", issues.Errors())
	}
	a.apply(next)
	return nil
}

// startControl serves the control socket for a. Failures leave the process
// running without it.
func startControl(cc config.ControlConfig, a *app, logger *slog.Logger) *ipc.Server {
	cfg := ipc.DefaultServerConfig(cc.Socket)
	cfg.Version = version
	cfg.Logger = logger
	server := ipc.NewServer(cfg, ipc.NewControlHandler(a, version, logger.With("component", "control")))
	a.events = server
	if err := server.Start(); err != nil {
		logger.Warn("control socket disabled", "error", err)
		a.events = nil
		return nil
	}
	return server
}
