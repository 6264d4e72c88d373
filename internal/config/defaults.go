package config

// DefaultConfig returns the default configuration with built-in worker
// roles and runner policy.
func DefaultConfig() *SwarmConfig {
	return &SwarmConfig{
		DBPath: "", // resolved to ~/.swarm/swarm.db by the loader when empty
		Runner: RunnerConfig{
			PollIntervalSeconds:       30,
			MaxRetries:                3,
			LeaseMaxAgeMinutes:        10,
			CheckpointDebounceSeconds: 5,
			DefaultRole:               "worker",
			Concurrency:               4,
		},
		Workers: map[string]WorkerConfig{
			"worker": {
				Command: "claude",
			},
			"coder": {
				Command: "claude",
			},
			"reviewer": {
				Command: "claude",
			},
			"tester": {
				Command: "claude",
			},
		},
	}
}
