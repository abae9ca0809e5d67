package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventStartup      AuditEventType = "startup"
	AuditEventShutdown     AuditEventType = "shutdown"
	AuditEventPermission   AuditEventType = "permission"
	AuditEventCapability   AuditEventType = "capability"
	AuditEventSession      AuditEventType = "session"
	AuditEventConfigChange AuditEventType = "config_change"
	AuditEventControl      AuditEventType = "control"
)

// AuditEvent is one line of the audit trail. The trail records when the
// process gained or lost the ability to observe trackpad input.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Result    string                 `json:"result"` // "success", "failure", "denied"
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string
}

// DefaultAuditConfig returns an audit configuration writing audit.log
// next to the default log file.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(filepath.Dir(defaultLogPath()), "audit.log"),
		MaxSize:    5,
		MaxAge:     90,
		MaxBackups: 5,
		Compress:   true,
		Component:  "swipetap",
	}
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	component string
	w         io.Writer
	closer    io.Closer
	now       func() time.Time
	mu        sync.Mutex
}

// NewAuditLogger creates an AuditLogger backed by a rotating file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	a := NewAuditWriter(rotator, cfg.Component)
	a.closer = rotator
	return a, nil
}

// NewAuditWriter creates an AuditLogger writing to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{component: component, w: w, now: time.Now}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

// LogStartup logs process start.
func (a *AuditLogger) LogStartup(version string, details map[string]interface{}) error {
	return a.Log(AuditEvent{
		EventType: AuditEventStartup,
		Action:    "started",
		Resource:  version,
		Result:    "success",
		Details:   details,
	})
}

// LogShutdown logs process exit.
func (a *AuditLogger) LogShutdown(reason string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "stopped",
		Result:    "success",
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogPermission logs the outcome of an event tap request against a
// platform facility.
func (a *AuditLogger) LogPermission(facility string, err error) error {
	event := AuditEvent{
		EventType: AuditEventPermission,
		Action:    "tap_requested",
		Resource:  facility,
		Result:    "success",
	}
	if err != nil {
		event.Result = "denied"
		event.Error = err.Error()
	}
	return a.Log(event)
}

// LogCapability logs indirect touch being switched on or off.
func (a *AuditLogger) LogCapability(enabled bool) error {
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	return a.Log(AuditEvent{
		EventType: AuditEventCapability,
		Action:    action,
		Result:    "success",
	})
}

// LogSession logs delivery being paused or resumed with the login session.
func (a *AuditLogger) LogSession(active bool) error {
	action := "paused"
	if active {
		action = "resumed"
	}
	return a.Log(AuditEvent{
		EventType: AuditEventSession,
		Action:    action,
		Result:    "success",
	})
}

// LogConfigChange logs a configuration change.
func (a *AuditLogger) LogConfigChange(setting, oldValue, newValue string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_changed",
		Resource:  setting,
		Result:    "success",
		Details: map[string]interface{}{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// LogControl logs a request received on the control socket.
func (a *AuditLogger) LogControl(request, client string, err error) error {
	event := AuditEvent{
		EventType: AuditEventControl,
		Action:    request,
		Resource:  client,
		Result:    "success",
	}
	if err != nil {
		event.Result = "failure"
		event.Error = err.Error()
	}
	return a.Log(event)
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
