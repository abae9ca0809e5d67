// swipetap-demo opens a window with a marker that follows two-finger
// trackpad swipes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/op"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"swipetap/cmd/swipetap-demo/internal/theme"
	"swipetap/cmd/swipetap-demo/internal/ui"
	"swipetap/internal/capability"
	"swipetap/internal/config"
	"swipetap/internal/gesture"
	"swipetap/internal/logging"
	"swipetap/internal/router"
	"swipetap/internal/runloop"
	"swipetap/internal/tap"
	"swipetap/internal/touch"
)

func main() {
	configPath := flag.String("config", "", "Configuration file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger, err := logging.New(&logging.Config{Level: level, Output: "stderr", Component: "swipetap-demo"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	go func() {
		w := new(app.Window)
		w.Option(app.Title("swipetap"))
		w.Option(app.Size(unit.Dp(800), unit.Dp(600)))

		if err := loop(w, cfg, logger.Logger); err != nil {
			logger.Error("window closed with error", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
}

// windows resolves every window id to the demo window. On macOS the id is
// the native window number, which the toolkit does not expose.
type windows struct{ canvas *ui.Canvas }

func (ws windows) Window(int64) (router.Window, bool) { return ws, true }

func (ws windows) HitTest(touch.Point) (router.Element, bool) { return ws.canvas, true }

func loop(w *app.Window, cfg *config.Config, logger *slog.Logger) error {
	mt := material.NewTheme()
	mt.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	t := theme.NewTheme(mt)

	canvas := ui.NewCanvas(t,
		gesture.WithInset(touch.Size{Width: cfg.Gesture.InsetX, Height: cfg.Gesture.InsetY}),
	)
	// Every backend reports a bottom-left origin; Gio draws top-down.
	canvas.FlipY = true
	canvas.Invalidate = w.Invalidate

	var backend tap.Backend
	if cfg.Tap.Backend == config.BackendSimulated {
		backend = tap.NewSimulated()
	} else {
		backend = tap.NewPlatformBackend(tap.PlatformOptions{
			Logger:  logger,
			Devices: cfg.Tap.Devices,
			Locate: func() (int64, touch.Point, bool) {
				return 1, touch.Point{}, true
			},
		})
	}

	rl := runloop.New("main", runloop.WithLogger(logger), runloop.WithPendingLimit(cfg.RunLoop.PendingLimit))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rl.Run(ctx)

	indirect := capability.New(capability.Config{
		Backend: backend,
		Loop:    rl,
		Windows: windows{canvas: canvas},
		Logger:  logger,
	})
	if err := indirect.Enable(); err != nil {
		logger.Warn("trackpad swipes unavailable", "error", err, "guidance", tap.DetectEnvironment().Guidance)
	}
	defer indirect.Disable()

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			canvas.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
