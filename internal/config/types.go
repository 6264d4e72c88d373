package config

// WorkerConfig defines how to invoke the agent CLI serving one role.
type WorkerConfig struct {
	Command string   `json:"command"`        // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty"` // Default args prepended to every invocation
}

// RunnerConfig holds the continuous runner's policy knobs.
// Durations are expressed in the unit named by the field.
type RunnerConfig struct {
	PollIntervalSeconds       int    `json:"poll_interval_seconds,omitempty"`
	MaxRetries                int    `json:"max_retries,omitempty"`
	LeaseMaxAgeMinutes        int    `json:"lease_max_age_minutes,omitempty"`
	CheckpointDebounceSeconds int    `json:"checkpoint_debounce_seconds,omitempty"`
	DefaultRole               string `json:"default_role,omitempty"`
	Concurrency               int    `json:"concurrency,omitempty"`
}

// SwarmConfig is the top-level configuration.
type SwarmConfig struct {
	DBPath  string                  `json:"db_path,omitempty"`
	Runner  RunnerConfig            `json:"runner"`
	Workers map[string]WorkerConfig `json:"workers"`
}
