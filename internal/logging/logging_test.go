package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", test.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level != test.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", test.input, level, test.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format Text, got %v", cfg.Format)
	}
	if cfg.Component != "swipetap" {
		t.Errorf("expected component 'swipetap', got %q", cfg.Component)
	}
	if !strings.Contains(cfg.FilePath, "swipetap") {
		t.Errorf("default log path should contain swipetap: %s", cfg.FilePath)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelDebug,
		Format:    FormatJSON,
		Component: "test",
		Precision: 4,
		Writer:    &buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Component("router").Info("forwarded", "phase", "moved", "velocity", 0.016666666, "unset", -1.0)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "forwarded" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["phase"] != "moved" {
		t.Errorf("unexpected phase %v", entry["phase"])
	}
	if entry["velocity"] != 0.0167 {
		t.Errorf("velocity not rounded: %v", entry["velocity"])
	}
	if entry["unset"] != -1.0 {
		t.Errorf("unexpected unset %v", entry["unset"])
	}
	// The child attribute is written last and wins on decode.
	if entry["component"] != "router" {
		t.Errorf("unexpected component %v", entry["component"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelWarn, Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message passed a warn filter")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message was dropped")
	}
}

func TestRoundFloats(t *testing.T) {
	round := roundFloats(2)
	tests := []struct {
		in       slog.Attr
		expected slog.Value
	}{
		{slog.Float64("value", 0.123456), slog.Float64Value(0.12)},
		{slog.Float64("value", -0.005), slog.Float64Value(-0.01)},
		{slog.Int("count", 2), slog.IntValue(2)},
		{slog.String("state", "changed"), slog.StringValue("changed")},
	}

	for _, test := range tests {
		if got := round(nil, test.in).Value; !got.Equal(test.expected) {
			t.Errorf("roundFloats(%v) = %v, expected %v", test.in, got, test.expected)
		}
	}

	inf := round(nil, slog.Float64("x", math.Inf(1))).Value.Float64()
	if !math.IsInf(inf, 1) {
		t.Errorf("infinity changed to %v", inf)
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "swipetap.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = logPath
	cfg.Compress = false

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("hello")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	rotator, err := NewFileRotator(&Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxBackups: 3,
		Compress:   false,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time { return clock }
	rotator.opened = clock

	line := []byte(strings.Repeat("x", 1023) + "\n")
	for i := 0; i < 1024; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	if got := len(rotator.LogFiles()); got != 1 {
		t.Fatalf("expected no rotation at exactly 1 MB, got %d files", got)
	}

	// One more line overflows the size limit.
	clock = clock.Add(time.Second)
	if _, err := rotator.Write(line); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := len(rotator.LogFiles()); got != 2 {
		t.Fatalf("expected one rotated file, got %d", got)
	}

	// The next day rotates regardless of size.
	clock = clock.Add(24 * time.Hour)
	if _, err := rotator.Write(line); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := len(rotator.LogFiles()); got != 3 {
		t.Errorf("expected two rotated files, got %d", got)
	}
}

func TestCrashHandler(t *testing.T) {
	tmpDir := t.TempDir()
	var crashed []CrashReport

	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  tmpDir,
		Version:   "1.0.0",
		Component: "test",
		Logger:    discardLogger(t),
		OnCrash:   func(r CrashReport) { crashed = append(crashed, r) },
	})

	handler.HandlePanic("test panic value", map[string]interface{}{
		"loop": "main",
	})
	handler.HandlePanic("second", nil)

	reports, err := handler.CrashReports()
	if err != nil {
		t.Fatalf("failed to get crash reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 crash reports, got %d", len(reports))
	}
	if len(crashed) != 2 {
		t.Errorf("expected OnCrash twice, got %d", len(crashed))
	}
	if crashed[0].PanicValue != "test panic value" || crashed[0].Context["loop"] != "main" {
		t.Errorf("unexpected report %+v", crashed[0])
	}
	if crashed[0].Version != "1.0.0" || crashed[0].Component != "test" {
		t.Errorf("unexpected report metadata %+v", crashed[0])
	}

	if err := handler.CleanupOldCrashReports(-time.Hour); err != nil {
		t.Errorf("CleanupOldCrashReports failed: %v", err)
	}
	if reports, _ := handler.CrashReports(); len(reports) != 0 {
		t.Errorf("expected reports removed, got %d", len(reports))
	}
}

func TestCrashHandlerRecovery(t *testing.T) {
	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Component: "test",
		Logger:    discardLogger(t),
	})

	panicked := false
	handler.Recover(func() {
		panicked = true
		panic("intentional test panic")
	})

	if !panicked {
		t.Error("function did not run")
	}
	reports, _ := handler.CrashReports()
	if len(reports) != 1 {
		t.Error("crash report was not created for recovered panic")
	}
}

func TestCrashHandlerWithoutDir(t *testing.T) {
	var got []CrashReport
	handler := NewCrashHandler(&CrashHandlerConfig{
		Logger:  discardLogger(t),
		OnCrash: func(r CrashReport) { got = append(got, r) },
	})
	handler.HandlePanic("boom", nil)
	if len(got) != 1 {
		t.Error("OnCrash not called without crash dir")
	}
}

func TestAuditLogger(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	audit, err := NewAuditLogger(&AuditLoggerConfig{
		FilePath:   auditPath,
		MaxSize:    1,
		MaxBackups: 1,
		Component:  "test",
	})
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}

	steps := []error{
		audit.LogStartup("dev", map[string]interface{}{"backend": "simulated"}),
		audit.LogPermission("quartz_event_tap", errors.New("not trusted")),
		audit.LogPermission("quartz_event_tap", nil),
		audit.LogCapability(true),
		audit.LogSession(false),
		audit.LogConfigChange("gesture.inset_x", "0.5", "0.25"),
		audit.LogControl("disable", "client-1", errors.New("busy")),
		audit.LogShutdown("signal"),
	}
	for i, err := range steps {
		if err != nil {
			t.Errorf("step %d failed: %v", i, err)
		}
	}
	if err := audit.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(steps) {
		t.Fatalf("expected %d lines, got %d", len(steps), len(lines))
	}

	var denied AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &denied); err != nil {
		t.Fatalf("line 2 is not valid JSON: %v", err)
	}
	if denied.EventType != AuditEventPermission || denied.Result != "denied" || denied.Error != "not trusted" {
		t.Errorf("unexpected permission event %+v", denied)
	}
	if denied.Component != "test" {
		t.Errorf("expected component 'test', got %q", denied.Component)
	}

	var session AuditEvent
	if err := json.Unmarshal([]byte(lines[4]), &session); err != nil {
		t.Fatalf("line 5 is not valid JSON: %v", err)
	}
	if session.Action != "paused" {
		t.Errorf("expected paused, got %q", session.Action)
	}

	var control AuditEvent
	if err := json.Unmarshal([]byte(lines[6]), &control); err != nil {
		t.Fatalf("line 7 is not valid JSON: %v", err)
	}
	if control.EventType != AuditEventControl || control.Resource != "client-1" || control.Result != "failure" {
		t.Errorf("unexpected control event %+v", control)
	}
}

func discardLogger(t *testing.T) *slog.Logger {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l.Logger
}
