package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"swipetap/internal/capability"
	"swipetap/internal/config"
	"swipetap/internal/gesture"
	"swipetap/internal/health"
	"swipetap/internal/ipc"
	"swipetap/internal/logging"
	"swipetap/internal/metrics"
	"swipetap/internal/runloop"
	"swipetap/internal/session"
	"swipetap/internal/tap"
	"swipetap/internal/touch"
)

// app holds the components of a running swipetap process.
type app struct {
	logger  *slog.Logger
	audit   *logging.AuditLogger
	metrics *metrics.Registry
	loop    *runloop.Loop
	swipe   *gesture.Swipe
	backend tap.Backend
	cap     *capability.Context
	events  *ipc.Server

	mu        sync.Mutex
	cfg       *config.Config
	path      string
	watcher   *config.ConfigWatcher
	overrides func(*config.Config) // command-line settings that survive reloads

	reloadMu sync.Mutex
}

// newApp wires the loop, recognizer and capability for cfg. audit may be
// nil.
func newApp(cfg *config.Config, backend tap.Backend, logger *slog.Logger, audit *logging.AuditLogger, reg *metrics.Registry, panics runloop.PanicHandler) *app {
	a := &app{
		logger:  logger,
		audit:   audit,
		metrics: reg,
		backend: backend,
		cfg:     cfg,
	}

	opts := []runloop.Option{
		runloop.WithLogger(logger.With("component", "runloop")),
		runloop.WithPendingLimit(cfg.RunLoop.PendingLimit),
	}
	if panics != nil {
		opts = append(opts, runloop.WithPanicHandler(panics))
	}
	a.loop = runloop.New("main", opts...)

	gestureLog := logger.With("component", "gesture")
	a.swipe = gesture.NewSwipe(
		gesture.WithInset(insetOf(cfg)),
		gesture.WithAction(func(s *gesture.Swipe) {
			gestureLog.Info("swipe",
				"state", s.State(),
				"value", s.Value(),
				"velocity", s.Velocity(),
			)
			d := s.Delta()
			a.events.Publish(ipc.EventGesture, &ipc.GestureEvent{
				GestureStatus: gestureStatus(s),
				DeltaX:        d.DX,
				DeltaY:        d.DY,
			})
		}),
	)

	a.cap = capability.New(capability.Config{
		Backend: backend,
		Loop:    a.loop,
		Windows: newDesktop(a.swipe),
		Logger:  logger.With("component", "capability"),
		Metrics: reg,
	})
	return a
}

func insetOf(cfg *config.Config) touch.Size {
	return touch.Size{Width: cfg.Gesture.InsetX, Height: cfg.Gesture.InsetY}
}

// enable turns routing on and records the outcome in the audit trail.
func (a *app) enable() error {
	err := a.cap.Enable()
	a.record(func(l *logging.AuditLogger) error { return l.LogPermission(a.backend.Name(), err) })
	if err != nil {
		return err
	}
	a.record(func(l *logging.AuditLogger) error { return l.LogCapability(true) })
	a.logger.Info("indirect touch enabled", "backend", a.backend.Name())
	a.publishCapability("enabled")
	return nil
}

func (a *app) disable() error {
	if !a.cap.Enabled() {
		return nil
	}
	err := a.cap.Disable()
	a.record(func(l *logging.AuditLogger) error { return l.LogCapability(false) })
	a.logger.Info("indirect touch disabled")
	a.publishCapability("disabled")
	return err
}

// sessionChanged pauses delivery while the login session is inactive.
func (a *app) sessionChanged(active bool) {
	a.cap.SetPaused(!active)
	a.record(func(l *logging.AuditLogger) error { return l.LogSession(active) })
	a.events.Publish(ipc.EventSession, &ipc.SessionEvent{Active: active})
	a.publishCapability("session")
}

func (a *app) publishCapability(reason string) {
	a.events.Publish(ipc.EventCapability, &ipc.CapabilityEvent{
		Enabled: a.cap.Enabled(),
		Paused:  a.cap.Paused(),
		Reason:  reason,
	})
}

// apply reconfigures the running app from a freshly loaded config.
func (a *app) apply(next *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	if a.overrides != nil {
		a.overrides(next)
	}
	a.mu.Lock()
	prev := a.cfg
	a.mu.Unlock()
	a.reconfigure(prev, next)
}

// reconfigure applies the settings of next that can change at runtime.
func (a *app) reconfigure(prev, next *config.Config) {
	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()

	var keys []string
	changed := func(setting, oldValue, newValue string) {
		if a.changed(setting, oldValue, newValue) {
			keys = append(keys, setting)
		}
	}
	defer func() {
		if len(keys) > 0 {
			a.events.Publish(ipc.EventConfigChanged, &ipc.ConfigChangedEvent{Keys: keys})
		}
	}()

	if prev.Gesture.InsetX != next.Gesture.InsetX || prev.Gesture.InsetY != next.Gesture.InsetY {
		inset := insetOf(next)
		a.loop.Post(func(context.Context) {
			a.swipe.SetDetectionInset(inset)
		})
		changed("gesture.inset_x", fmtFloat(prev.Gesture.InsetX), fmtFloat(next.Gesture.InsetX))
		changed("gesture.inset_y", fmtFloat(prev.Gesture.InsetY), fmtFloat(next.Gesture.InsetY))
	}

	if prev.Tap.Enabled != next.Tap.Enabled {
		changed("tap.enabled", strconv.FormatBool(prev.Tap.Enabled), strconv.FormatBool(next.Tap.Enabled))
		var err error
		if next.Tap.Enabled {
			err = a.enable()
		} else {
			err = a.disable()
		}
		if err != nil {
			a.logger.Warn("apply tap.enabled failed", "error", err)
		}
	}

	if prev.Tap.Backend != next.Tap.Backend || !sameStrings(prev.Tap.Devices, next.Tap.Devices) ||
		prev.Tap.PauseInactive != next.Tap.PauseInactive {
		a.logger.Warn("tap backend and session settings change on restart")
	}
	if prev.Logging != next.Logging || prev.Metrics != next.Metrics || prev.RunLoop != next.RunLoop || prev.Control != next.Control {
		a.logger.Warn("logging, metrics, runloop and control settings change on restart")
	}
}

// changed logs and audits a setting change. It reports false when the
// value did not change.
func (a *app) changed(setting, oldValue, newValue string) bool {
	if oldValue == newValue {
		return false
	}
	a.logger.Info("config changed", "setting", setting, "old", oldValue, "new", newValue)
	a.record(func(l *logging.AuditLogger) error { return l.LogConfigChange(setting, oldValue, newValue) })
	return true
}

func (a *app) record(fn func(*logging.AuditLogger) error) {
	if a.audit == nil {
		return
	}
	if err := fn(a.audit); err != nil {
		a.logger.Warn("audit write failed", "error", err)
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file")
	simulate := fs.Bool("simulate", false, "Use the simulated backend and play a scripted swipe")
	logLevel := fs.String("log-level", "", "Override the configured log level")
	auditOn := fs.Bool("audit", true, "Write the audit trail")
	fs.Parse(args)

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	overrides := func(c *config.Config) {
		if *logLevel != "" {
			c.Logging.Level = *logLevel
		}
		if *simulate {
			c.Tap.Backend = config.BackendSimulated
		}
	}
	overrides(cfg)
	issues := config.Check(cfg)
	if issues.HasErrors() {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", issues.Errors())
		return 1
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	base, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer base.Close()
	logging.SetDefault(base)
	logger := base.Logger
	for _, w := range issues.Warnings() {
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	var audit *logging.AuditLogger
	if *auditOn {
		auditCfg := logging.DefaultAuditConfig()
		if cfg.Logging.FilePath != "" {
			auditCfg.FilePath = filepath.Join(filepath.Dir(cfg.Logging.FilePath), "audit.log")
		}
		audit, err = logging.NewAuditLogger(auditCfg)
		if err != nil {
			logger.Warn("audit trail disabled", "error", err)
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  logging.DefaultCrashDir(),
		Version:   version,
		Component: "runloop",
		Logger:    logger,
	})

	var backend tap.Backend
	var sim *tap.Simulated
	if cfg.Tap.Backend == config.BackendSimulated {
		sim = tap.NewSimulated()
		backend = sim
	} else {
		backend = tap.NewPlatformBackend(tap.PlatformOptions{
			Logger:  logger.With("component", "tap"),
			Devices: cfg.Tap.Devices,
			Locate:  fullScreenLocator,
		})
	}

	reg := metrics.Default()
	a := newApp(cfg, backend, logger, audit, reg, crash.HandlePanic)
	a.path = path
	a.overrides = overrides
	a.record(func(l *logging.AuditLogger) error {
		return l.LogStartup(version, map[string]interface{}{
			"backend": backend.Name(),
			"config":  path,
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var control *ipc.Server
	if cfg.Control.Enabled {
		control = startControl(cfg.Control, a, logger)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(ctx) }()

	if cfg.Tap.Enabled {
		if err := a.enable(); err != nil {
			logger.Error("indirect touch unavailable", "error", err)
			if errors.Is(err, capability.ErrUnavailable) {
				fmt.Fprintln(os.Stderr, tap.DetectEnvironment().Guidance)
			}
		}
	}

	var monitor session.Monitor
	if cfg.Tap.PauseInactive {
		monitor = session.NewMonitor(logger.With("component", "session"))
		if err := monitor.Start(ctx, a.sessionChanged); err != nil {
			logger.Warn("session monitor unavailable", "error", err)
			monitor = nil
		}
	}

	checker := newHealth(a, func() bool { return cfg.Control.Enabled })
	checker.SetReady(true)

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = serveMetrics(cfg.Metrics.Listen, reg, checker, logger)
	}

	var watcher *config.ConfigWatcher
	if _, err := os.Stat(path); err == nil {
		watcher, err = startWatcher(path, a, logger)
		if err != nil {
			logger.Warn("config reload disabled", "error", err)
		}
	}
	a.mu.Lock()
	a.watcher = watcher
	a.mu.Unlock()

	if sim != nil {
		go defaultScript().loop(ctx, sim, 2*time.Second)
	}

	logger.Info("swipetap running", "version", version, "backend", backend.Name(), "config", path)
	<-ctx.Done()
	logger.Info("shutting down")

	if watcher != nil {
		watcher.Stop()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
	}
	if err := a.disable(); err != nil {
		logger.Warn("disable failed", "error", err)
	}
	if control != nil {
		if err := control.Stop(); err != nil {
			logger.Warn("control socket cleanup failed", "error", err)
		}
	}
	if err := <-loopDone; err != nil {
		logger.Warn("run loop exited", "error", err)
	}
	a.record(func(l *logging.AuditLogger) error { return l.LogShutdown("signal") })
	return 0
}

func newLogger(lc config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = lc.Output
	cfg.FilePath = lc.FilePath
	cfg.MaxSize = int64(lc.MaxSizeMB)
	cfg.MaxBackups = lc.MaxBackups
	cfg.MaxAge = lc.MaxAgeDays
	cfg.Compress = lc.Compress
	return logging.New(cfg)
}

// fullScreenLocator targets every evdev sample at the desktop center.
func fullScreenLocator() (int64, touch.Point, bool) {
	return 1, touch.Point{X: 0.5, Y: 0.5}, true
}

// serveMetrics serves /metrics and the health endpoints on addr.
func serveMetrics(addr string, reg *metrics.Registry, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.HTTPHandler())
	checker.Mount(mux)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return server
}

func startWatcher(path string, a *app, logger *slog.Logger) (*config.ConfigWatcher, error) {
	watcher, err := config.NewConfigWatcher(path)
	if err != nil {
		return nil, err
	}
	watcher.OnChange(func(_, next *config.Config) { a.apply(next) })
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	go func() {
		for err := range watcher.Errors() {
			logger.Warn("config reload rejected", "error", err)
		}
	}()
	return watcher, nil
}
