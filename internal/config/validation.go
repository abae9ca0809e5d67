package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	// Warning marks an issue that does not prevent startup.
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrInvalidConfig for any non-empty collection.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// ValidateConfig performs comprehensive validation of the configuration.
// Only error-level problems are returned; see ValidationErrors.Warnings.
func ValidateConfig(c *Config) error {
	errs := validateAll(c).Errors()
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Check returns every validation issue, warnings included.
func Check(c *Config) ValidationErrors {
	return validateAll(c)
}

func validateAll(c *Config) ValidationErrors {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	// Validate version
	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateTap(&c.Tap)...)
	errs = append(errs, validateGesture(&c.Gesture)...)
	errs = append(errs, validateRunLoop(&c.RunLoop)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateControl(&c.Control)...)

	return errs
}

func validateTap(t *TapConfig) ValidationErrors {
	var errs ValidationErrors

	switch t.Backend {
	case BackendAuto, BackendSimulated:
	default:
		errs = append(errs, ValidationError{
			Field:   "tap.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: auto, simulated)", t.Backend),
		})
	}

	for i, dev := range t.Devices {
		field := fmt.Sprintf("tap.devices[%d]", i)
		if dev == "" {
			errs = append(errs, ValidationError{Field: field, Message: "device path cannot be empty"})
			continue
		}
		// Devices may be hot-plugged later.
		if _, err := os.Stat(dev); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("device not found: %s", dev), Warning: true})
		}
	}

	return errs
}

func validateGesture(g *GestureConfig) ValidationErrors {
	var errs ValidationErrors

	check := func(field string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, *RangeError(field, 0, 1))
		}
	}
	check("gesture.inset_x", g.InsetX)
	check("gesture.inset_y", g.InsetY)

	if g.Inset != nil {
		errs = append(errs, ValidationError{
			Field:   "gesture.inset",
			Message: "inset was replaced by inset_x and inset_y",
			Warning: true,
		})
	}

	return errs
}

func validateRunLoop(r *RunLoopConfig) ValidationErrors {
	var errs ValidationErrors

	if r.PendingLimit < 1 || r.PendingLimit > 4096 {
		errs = append(errs, *RangeError("runloop.pending_limit", 1, 4096))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if !m.Enabled {
		return errs
	}
	if m.Listen == "" {
		errs = append(errs, *RequiredFieldError("metrics.listen"))
	} else if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	return errs
}

func validateControl(c *ControlConfig) ValidationErrors {
	var errs ValidationErrors

	if !c.Enabled {
		return errs
	}
	if c.Socket == "" {
		errs = append(errs, *RequiredFieldError("control.socket"))
	} else if len(c.Socket) > maxSocketPath {
		errs = append(errs, ValidationError{
			Field:   "control.socket",
			Message: fmt.Sprintf("socket path longer than %d bytes", maxSocketPath),
		})
	}

	return errs
}

// maxSocketPath is the sun_path limit on macOS, the stricter of the
// supported platforms.
const maxSocketPath = 103

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	return e.Warning
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
