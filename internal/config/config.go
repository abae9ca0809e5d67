// Package config handles configuration loading, validation, and management for swipetap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 2

// Backend names accepted in [tap] backend.
const (
	BackendAuto      = "auto"
	BackendSimulated = "simulated"
)

// Config holds the complete swipetap configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Tap configures the system event tap.
	Tap TapConfig `toml:"tap" json:"tap" yaml:"tap"`

	// Gesture configures the swipe recognizer.
	Gesture GestureConfig `toml:"gesture" json:"gesture" yaml:"gesture"`

	// RunLoop configures the main event loop.
	RunLoop RunLoopConfig `toml:"runloop" json:"runloop" yaml:"runloop"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Control configures the local control socket.
	Control ControlConfig `toml:"control" json:"control" yaml:"control"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// TapConfig holds event tap configuration.
type TapConfig struct {
	// Enabled turns indirect touch routing on at startup.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Backend selects the tap implementation: "auto" or "simulated".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Devices lists evdev device nodes to read on Linux.
	// If empty, touchpads are discovered from /proc/bus/input/devices.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`

	// PauseInactive suspends delivery while the login session is inactive.
	PauseInactive bool `toml:"pause_inactive" json:"pause_inactive" yaml:"pause_inactive"`
}

// GestureConfig holds swipe recognizer configuration.
type GestureConfig struct {
	// InsetX and InsetY are the detection inset per axis, in [0,1].
	InsetX float64 `toml:"inset_x" json:"inset_x" yaml:"inset_x"`
	InsetY float64 `toml:"inset_y" json:"inset_y" yaml:"inset_y"`

	// Inset is the single-value inset of version 1 files. Migration
	// copies it to both axes and clears it.
	Inset *float64 `toml:"inset,omitempty" json:"inset,omitempty" yaml:"inset,omitempty"`
}

// RunLoopConfig holds event loop configuration.
type RunLoopConfig struct {
	// PendingLimit bounds the signals queued per source.
	PendingLimit int `toml:"pending_limit" json:"pending_limit" yaml:"pending_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format (text, json).
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is where logs are written (stdout, stderr, file, both).
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress enables gzip compression of rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig holds metrics exposition configuration.
type MetricsConfig struct {
	// Enabled serves /metrics on Listen.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the TCP address of the metrics server.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// ControlConfig holds control socket configuration.
type ControlConfig struct {
	// Enabled serves the control socket while swipetap runs.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Socket is the Unix socket path.
	Socket string `toml:"socket" json:"socket" yaml:"socket"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Tap: TapConfig{
			Enabled:       true,
			Backend:       BackendAuto,
			Devices:       []string{},
			PauseInactive: true,
		},
		Gesture: GestureConfig{
			InsetX: 0.5,
			InsetY: 0.5,
		},
		RunLoop: RunLoopConfig{
			PendingLimit: 64,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "swipetap.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Control: ControlConfig{
			Enabled: true,
			Socket:  filepath.Join(PlatformRuntimeDir(), "control.sock"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ConfigDir returns the swipetap configuration directory.
// SWIPETAP_CONFIG_DIR overrides the platform default.
func ConfigDir() string {
	if envDir := os.Getenv("SWIPETAP_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	return PlatformConfigDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Older versions are migrated in memory; the file is left untouched.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	if cfg.Version < Version {
		if _, err := MigrateConfig(cfg); err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured outputs need.
func (c *Config) EnsureDirectories() error {
	if c.Logging.Output != "file" && c.Logging.Output != "both" {
		return nil
	}
	dir := filepath.Dir(c.Logging.FilePath)
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SWIPETAP_ and use underscores.
// Malformed boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Tap overrides
	if v := os.Getenv("SWIPETAP_TAP_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tap.Enabled = b
		}
	}
	if v := os.Getenv("SWIPETAP_TAP_BACKEND"); v != "" {
		c.Tap.Backend = v
	}
	if v := os.Getenv("SWIPETAP_TAP_DEVICES"); v != "" {
		c.Tap.Devices = splitList(v)
	}

	// Logging overrides
	if v := os.Getenv("SWIPETAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SWIPETAP_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Metrics overrides
	if v := os.Getenv("SWIPETAP_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}

	// Control overrides
	if v := os.Getenv("SWIPETAP_CONTROL_SOCKET"); v != "" {
		c.Control.Socket = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version: c.Version,
		Tap:     c.Tap,
		Gesture: c.Gesture,
		RunLoop: c.RunLoop,
		Logging: c.Logging,
		Metrics: c.Metrics,
		Control: c.Control,
	}

	// Deep copy slices and pointers
	clone.Tap.Devices = append([]string{}, c.Tap.Devices...)
	if c.Gesture.Inset != nil {
		v := *c.Gesture.Inset
		clone.Gesture.Inset = &v
	}

	return clone
}

// Encode writes the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	b.WriteString("# swipetap configuration\n\n")
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return nil, fmt.Errorf("encode TOML: %w", err)
	}
	return []byte(b.String()), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
