package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/swipetap/
//   - Linux:   ~/.config/swipetap/
//   - Windows: %APPDATA%\swipetap\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "swipetap")
	case "linux":
		// XDG_CONFIG_HOME or ~/.config
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "swipetap")
		}
		return filepath.Join(homeDir(), ".config", "swipetap")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "swipetap")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "swipetap")
	default:
		return filepath.Join(homeDir(), ".swipetap")
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/swipetap/
//   - Linux:   ~/.local/state/swipetap/
//   - Windows: %LOCALAPPDATA%\swipetap\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "swipetap")
	case "linux":
		// XDG_STATE_HOME or ~/.local/state
		if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
			return filepath.Join(xdgState, "swipetap")
		}
		return filepath.Join(homeDir(), ".local", "state", "swipetap")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "swipetap", "logs")
		}
		return filepath.Join(homeDir(), "AppData", "Local", "swipetap", "logs")
	default:
		return filepath.Join(homeDir(), ".swipetap", "logs")
	}
}

// PlatformRuntimeDir returns the directory for the control socket.
//
// Platform paths:
//   - Linux:   $XDG_RUNTIME_DIR/swipetap/, else the config directory
//   - Others:  the config directory
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "swipetap")
		}
	}
	return PlatformConfigDir()
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. Current directory
	// 2. Config directory
	searchDirs := []string{
		".",
		ConfigDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
