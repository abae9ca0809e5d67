package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MigrationResult contains the result of a configuration migration.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Changes     []string
	Warnings    []string
}

// MigrateConfig upgrades cfg in place to the current version.
// It returns nil when no migration was needed.
func MigrateConfig(cfg *Config) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil // No migration needed
	}

	result := &MigrationResult{
		FromVersion: cfg.Version,
		ToVersion:   Version,
	}

	// Apply migrations in sequence
	for cfg.Version < Version {
		changes, warnings, err := applyMigration(cfg)
		if err != nil {
			return result, fmt.Errorf("migration from v%d to v%d failed: %w", cfg.Version, cfg.Version+1, err)
		}
		result.Changes = append(result.Changes, changes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

// applyMigration applies a single version upgrade.
func applyMigration(cfg *Config) (changes []string, warnings []string, err error) {
	switch cfg.Version {
	case 1:
		changes, warnings = migrateV1ToV2(cfg)
	default:
		return nil, nil, fmt.Errorf("unknown version %d", cfg.Version)
	}

	cfg.Version++
	return changes, warnings, nil
}

// migrateV1ToV2 migrates from version 1 to version 2.
// V1 had a single gesture inset shared by both axes.
func migrateV1ToV2(cfg *Config) (changes []string, warnings []string) {
	if cfg.Gesture.Inset != nil {
		v := *cfg.Gesture.Inset
		cfg.Gesture.InsetX = v
		cfg.Gesture.InsetY = v
		cfg.Gesture.Inset = nil
		changes = append(changes, fmt.Sprintf("split gesture.inset %.2f into inset_x and inset_y", v))
	}

	if cfg.Tap.Backend == "" {
		cfg.Tap.Backend = BackendAuto
		changes = append(changes, "set default tap.backend")
	}

	return changes, warnings
}

// SaveConfig saves the configuration to a file.
func SaveConfig(cfg *Config, path string) error {
	// Determine format from extension
	ext := filepath.Ext(path)

	var data []byte
	var err error

	switch ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = cfg.Encode()
	}

	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
