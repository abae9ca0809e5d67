package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swipetap/internal/config"
	"swipetap/internal/ipc"
)

// ctlCommand talks to a running swipetap over the control socket.
type ctlCommand struct {
	client *ipc.IPCClient
	out    io.Writer
}

func cmdCtl(args []string) int {
	return runCtl(context.Background(), args, os.Stdout, os.Stderr)
}

func runCtl(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Configuration file")
	socket := fs.String("socket", "", "Control socket (default: from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Usage: swipetap ctl [-socket path] <status|enable|disable|pause|resume|config|reload|watch|ping>")
		return 2
	}

	path := *socket
	if path == "" {
		cfg, err := config.Load(resolveConfigPath(*configPath))
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
		path = cfg.Control.Socket
	}

	cc := ipc.DefaultClientConfig(path)
	cc.ClientVersion = version
	client := ipc.NewClient(cc)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(stderr, "Cannot connect to swipetap at %s: %v\n", path, err)
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(stderr, "  Tip: start it with: swipetap run")
		}
		return 1
	}
	defer client.Close()

	cmd := &ctlCommand{client: client, out: stdout}
	var err error
	switch action := fs.Arg(0); action {
	case "status":
		err = cmd.status()
	case "enable":
		err = cmd.capability(client.Enable())
	case "disable":
		err = cmd.capability(client.Disable())
	case "pause":
		err = cmd.capability(client.SetPaused(true))
	case "resume":
		err = cmd.capability(client.SetPaused(false))
	case "config":
		err = cmd.config()
	case "reload":
		if err = client.ReloadConfig(); err == nil {
			fmt.Fprintln(stdout, "Configuration reloaded.")
		}
	case "watch":
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = cmd.watch(ctx)
	case "ping":
		var rtt time.Duration
		if rtt, err = client.Ping(); err == nil {
			fmt.Fprintf(stdout, "pong from swipetap %s in %s\n", client.ServerVersion(), rtt.Round(time.Microsecond))
		}
	default:
		fmt.Fprintf(stderr, "Unknown ctl action: %s\n", action)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *ctlCommand) status() error {
	st, err := c.client.Status()
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "=== swipetap Status ===")
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Version:     %s\n", st.Version)
	fmt.Fprintf(c.out, "Uptime:      %s\n", st.Uptime.Round(time.Second))
	fmt.Fprintf(c.out, "Backend:     %s\n", st.Backend)
	fmt.Fprintf(c.out, "Enabled:     %v\n", st.Enabled)
	fmt.Fprintf(c.out, "Paused:      %v\n", st.Paused)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Router:")
	fmt.Fprintf(c.out, "  Received:  %d\n", st.Router.Received)
	fmt.Fprintf(c.out, "  Forwarded: %d\n", st.Router.Forwarded)
	fmt.Fprintf(c.out, "  Dropped:   %d\n", st.Router.Dropped)
	fmt.Fprintf(c.out, "  Pending:   %d\n", st.Router.Pending)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Swipe:")
	fmt.Fprintf(c.out, "  State:     %s\n", st.Gesture.State)
	fmt.Fprintf(c.out, "  Value:     (%.3f, %.3f)\n", st.Gesture.ValueX, st.Gesture.ValueY)
	fmt.Fprintf(c.out, "  Interval:  %s\n", formatInterval(st.Gesture.Velocity))
	fmt.Fprintf(c.out, "  Inset:     %.3f x %.3f\n", st.Gesture.InsetX, st.Gesture.InsetY)
	return nil
}

func formatInterval(v float64) string {
	if v < 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.3fs", v)
}

func (c *ctlCommand) capability(resp *ipc.CapabilityResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "enabled=%v paused=%v\n", resp.Enabled, resp.Paused)
	return nil
}

func (c *ctlCommand) config() error {
	resp, err := c.client.GetConfig()
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Config, "", "  "); err != nil {
		return err
	}
	if resp.Path != "" {
		fmt.Fprintf(c.out, "# %s\n", resp.Path)
	}
	fmt.Fprintln(c.out, pretty.String())
	return nil
}

// watch prints streamed events until ctx is done or swipetap exits.
func (c *ctlCommand) watch(ctx context.Context) error {
	if err := c.client.Subscribe(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.client.Events():
			if !ok {
				return nil
			}
			c.printEvent(ev)
			if ev.Type == ipc.EventShutdown {
				return nil
			}
		}
	}
}

func (c *ctlCommand) printEvent(ev *ipc.Event) {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case ipc.EventGesture:
		var g ipc.GestureEvent
		if err := ev.DecodeData(&g); err != nil {
			break
		}
		fmt.Fprintf(c.out, "%s swipe %-9s value=(%.3f, %.3f) delta=(%.3f, %.3f) interval=%s\n",
			ts, g.State, g.ValueX, g.ValueY, g.DeltaX, g.DeltaY, formatInterval(g.Velocity))
		return
	case ipc.EventCapability:
		var e ipc.CapabilityEvent
		if err := ev.DecodeData(&e); err != nil {
			break
		}
		fmt.Fprintf(c.out, "%s capability enabled=%v paused=%v (%s)\n", ts, e.Enabled, e.Paused, e.Reason)
		return
	case ipc.EventSession:
		var e ipc.SessionEvent
		if err := ev.DecodeData(&e); err != nil {
			break
		}
		fmt.Fprintf(c.out, "%s session active=%v\n", ts, e.Active)
		return
	case ipc.EventConfigChanged:
		var e ipc.ConfigChangedEvent
		if err := ev.DecodeData(&e); err != nil {
			break
		}
		fmt.Fprintf(c.out, "%s config changed %v\n", ts, e.Keys)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", ts, ev.Type)
}
