package config

// DefaultConfig returns the built-in configuration. Values from strands.yaml
// override these field by field.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownSeconds: 10,
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Host:        "localhost",
			Port:        5432,
			User:        "strands",
			PasswordEnv: "STRANDS_DB_PASSWORD",
			Name:        "strands",
			SSLMode:     "disable",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		LLM: LLMConfig{
			Provider:  "simulated",
			APIKeyEnv: "STRANDS_LLM_API_KEY",
		},
		Trend: TrendConfig{
			DegradingThreshold:  0.15,
			RecoveringThreshold: 0.10,
			LookbackMinutes:     15,
			StepSeconds:         30,
		},
		Correlation: CorrelationConfig{
			WindowMinutes: 5,
			MinScore:      0.5,
		},
		Decision: DecisionConfig{
			AcceptThreshold:   0.60,
			LLMThreshold:      0.60,
			SemanticThreshold: 0.60,
		},
		Swarm: SwarmConfig{
			MaxRetryRounds:       10,
			MaxTotalAttempts:     50,
			MaxRuntimeSeconds:    3000,
			StepDeadlineSeconds:  30,
			UseLLMFallback:       true,
			LLMFallbackThreshold: 0.5,
		},
		Dedup: DedupConfig{
			TTLSeconds:       300,
			LockLeaseSeconds: 60,
		},
		Confidence: ConfidenceConfig{
			DecayRate:     0.001,
			Penalty:       0.10,
			Reinforcement: 0.05,
		},
	}
}
