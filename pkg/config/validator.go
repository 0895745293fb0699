package config

import (
	"errors"
	"fmt"
)

var validProviders = map[string]bool{
	"simulated": true,
	"openai":    true,
	"anthropic": true,
	"local":     true,
	"ollama":    true,
}

// Validate checks cross-field constraints on a loaded configuration.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, NewValidationError("server", "server", "port",
			fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Server.Port)))
	}
	if !validProviders[cfg.LLM.Provider] {
		errs = append(errs, NewValidationError("llm", cfg.LLM.Provider, "provider", ErrInvalidValue))
	}
	if cfg.Database.Enabled && cfg.Database.Host == "" {
		errs = append(errs, NewValidationError("database", "database", "host", ErrMissingRequiredField))
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		errs = append(errs, NewValidationError("redis", "redis", "addr", ErrMissingRequiredField))
	}

	for _, f := range []struct {
		component, field string
		value            float64
	}{
		{"trend", "degrading_threshold", cfg.Trend.DegradingThreshold},
		{"trend", "recovering_threshold", cfg.Trend.RecoveringThreshold},
		{"correlation", "min_score", cfg.Correlation.MinScore},
		{"decision", "accept_threshold", cfg.Decision.AcceptThreshold},
		{"decision", "llm_threshold", cfg.Decision.LLMThreshold},
		{"decision", "semantic_threshold", cfg.Decision.SemanticThreshold},
		{"swarm", "llm_fallback_threshold", cfg.Swarm.LLMFallbackThreshold},
		{"confidence", "decay_rate", cfg.Confidence.DecayRate},
		{"confidence", "penalty", cfg.Confidence.Penalty},
		{"confidence", "reinforcement", cfg.Confidence.Reinforcement},
	} {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, NewValidationError(f.component, f.component, f.field,
				fmt.Errorf("%w: %v not in [0,1]", ErrInvalidValue, f.value)))
		}
	}

	for _, f := range []struct {
		component, field string
		value            int
	}{
		{"trend", "lookback_minutes", cfg.Trend.LookbackMinutes},
		{"trend", "step_seconds", cfg.Trend.StepSeconds},
		{"correlation", "window_minutes", cfg.Correlation.WindowMinutes},
		{"swarm", "max_retry_rounds", cfg.Swarm.MaxRetryRounds},
		{"swarm", "max_total_attempts", cfg.Swarm.MaxTotalAttempts},
		{"swarm", "max_runtime_seconds", cfg.Swarm.MaxRuntimeSeconds},
		{"swarm", "step_deadline_seconds", cfg.Swarm.StepDeadlineSeconds},
		{"dedup", "ttl_seconds", cfg.Dedup.TTLSeconds},
		{"dedup", "lock_lease_seconds", cfg.Dedup.LockLeaseSeconds},
	} {
		if f.value <= 0 {
			errs = append(errs, NewValidationError(f.component, f.component, f.field,
				fmt.Errorf("%w: %d must be positive", ErrInvalidValue, f.value)))
		}
	}

	if cfg.Swarm.MaxTotalAttempts < cfg.Swarm.MaxRetryRounds {
		errs = append(errs, NewValidationError("swarm", "swarm", "max_total_attempts",
			fmt.Errorf("%w: must be >= max_retry_rounds", ErrInvalidValue)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}
