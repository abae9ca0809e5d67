//go:build linux

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

// logindMonitor follows the Active property of this process's logind
// session over the system bus.
type logindMonitor struct {
	logger *slog.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func newPlatformMonitor(logger *slog.Logger) Monitor {
	return &logindMonitor{logger: logger.With("component", "session")}
}

func (m *logindMonitor) Start(ctx context.Context, fn Handler) error {
	if fn == nil {
		return errors.New("session handler must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return errors.New("session monitor already started")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}

	path, err := sessionPath(conn)
	if err != nil {
		conn.Close()
		return err
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember(propertiesChanged),
	); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to session properties: %w", err)
	}

	active, err := queryActive(conn, path)
	if err != nil {
		conn.Close()
		return err
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	ctx, cancel := context.WithCancel(ctx)
	m.conn = conn
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("watching logind session", "path", path, "active", active)
	fn(active)

	go m.watch(ctx, conn, path, signals, fn)
	return nil
}

func (m *logindMonitor) watch(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath, signals <-chan *dbus.Signal, fn Handler) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Path != path || sig.Name != propertiesInterface+"."+propertiesChanged {
				continue
			}
			active, known, requery := activeChange(sig.Body)
			if requery {
				var err error
				active, err = queryActive(conn, path)
				if err != nil {
					m.logger.Warn("session state query failed", "error", err)
					continue
				}
				known = true
			}
			if known {
				m.logger.Debug("session activity changed", "active", active)
				fn(active)
			}
		}
	}
}

func (m *logindMonitor) Stop() error {
	m.mu.Lock()
	conn, cancel, done := m.conn, m.cancel, m.done
	m.conn, m.cancel, m.done = nil, nil, nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	<-done
	return conn.Close()
}

// sessionPath finds the logind session of this process, falling back to
// XDG_SESSION_ID for processes started outside a session scope.
func sessionPath(conn *dbus.Conn) (dbus.ObjectPath, error) {
	manager := conn.Object(login1Name, login1ManagerPath)

	var path dbus.ObjectPath
	err := manager.Call(login1Manager+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&path)
	if err == nil {
		return path, nil
	}

	id := os.Getenv("XDG_SESSION_ID")
	if id == "" {
		return "", fmt.Errorf("find logind session: %w", err)
	}
	if err := manager.Call(login1Manager+".GetSession", 0, id).Store(&path); err != nil {
		return "", fmt.Errorf("find logind session %q: %w", id, err)
	}
	return path, nil
}

func queryActive(conn *dbus.Conn, path dbus.ObjectPath) (bool, error) {
	v, err := conn.Object(login1Name, path).GetProperty(login1Session + ".Active")
	if err != nil {
		return false, fmt.Errorf("read session Active: %w", err)
	}
	active, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("session Active has type %s", v.Signature())
	}
	return active, nil
}
