package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*SwarmConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if cfg.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(homeDir, ".swarm", "swarm.db")
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.swarm/config.json
// Project: .swarm/config.json (relative to cwd)
func LoadDefault() (*SwarmConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".swarm", "config.json")
	projectPath := filepath.Join(".swarm", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped. Malformed JSON returns an
// error.
func mergeConfigFile(base *SwarmConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded SwarmConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.DBPath != "" {
		base.DBPath = loaded.DBPath
	}

	mergeRunner(&base.Runner, loaded.Runner)

	for key, worker := range loaded.Workers {
		base.Workers[key] = worker
	}

	return nil
}

// mergeRunner overrides only the fields the loaded file actually set.
func mergeRunner(base *RunnerConfig, loaded RunnerConfig) {
	if loaded.PollIntervalSeconds > 0 {
		base.PollIntervalSeconds = loaded.PollIntervalSeconds
	}
	if loaded.MaxRetries > 0 {
		base.MaxRetries = loaded.MaxRetries
	}
	if loaded.LeaseMaxAgeMinutes > 0 {
		base.LeaseMaxAgeMinutes = loaded.LeaseMaxAgeMinutes
	}
	if loaded.CheckpointDebounceSeconds > 0 {
		base.CheckpointDebounceSeconds = loaded.CheckpointDebounceSeconds
	}
	if loaded.DefaultRole != "" {
		base.DefaultRole = loaded.DefaultRole
	}
	if loaded.Concurrency > 0 {
		base.Concurrency = loaded.Concurrency
	}
}
