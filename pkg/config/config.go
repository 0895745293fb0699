// Package config loads and validates the service configuration from
// strands.yaml plus environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	LLM         LLMConfig         `yaml:"llm"`
	Trend       TrendConfig       `yaml:"trend"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Decision    DecisionConfig    `yaml:"decision"`
	Swarm       SwarmConfig       `yaml:"swarm"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Confidence  ConfidenceConfig  `yaml:"confidence"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig holds PostgreSQL connection settings. Password is read from
// the environment variable named by PasswordEnv.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	Name        string `yaml:"name"`
	SSLMode     string `yaml:"ssl_mode"`
}

// Password resolves the database password from the environment.
func (d DatabaseConfig) Password() string { return os.Getenv(d.PasswordEnv) }

// RedisConfig holds the settings for the deduplication store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// LLMConfig selects the completion provider backing semantic fallback and
// the hypothesis agent. APIKeyEnv names the environment variable holding
// the credential.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the provider credential from the environment.
func (l LLMConfig) APIKey() string { return os.Getenv(l.APIKeyEnv) }

// TrendConfig tunes metric trend analysis.
type TrendConfig struct {
	DegradingThreshold  float64 `yaml:"degrading_threshold"`
	RecoveringThreshold float64 `yaml:"recovering_threshold"`
	LookbackMinutes     int     `yaml:"lookback_minutes"`
	StepSeconds         int     `yaml:"step_seconds"`
}

// CorrelationConfig tunes alert clustering.
type CorrelationConfig struct {
	WindowMinutes int     `yaml:"window_minutes"`
	MinScore      float64 `yaml:"min_score"`
}

// DecisionConfig tunes the rule engine and its fallback stages.
type DecisionConfig struct {
	AcceptThreshold   float64 `yaml:"accept_threshold"`
	LLMThreshold      float64 `yaml:"llm_threshold"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// SwarmConfig bounds swarm execution.
type SwarmConfig struct {
	MaxRetryRounds       int     `yaml:"max_retry_rounds"`
	MaxTotalAttempts     int     `yaml:"max_total_attempts"`
	MaxRuntimeSeconds    int     `yaml:"max_runtime_seconds"`
	StepDeadlineSeconds  int     `yaml:"step_deadline_seconds"`
	UseLLMFallback       bool    `yaml:"use_llm_fallback"`
	LLMFallbackThreshold float64 `yaml:"llm_fallback_threshold"`
}

// DedupConfig tunes the Redis deduplication layer.
type DedupConfig struct {
	TTLSeconds       int `yaml:"ttl_seconds"`
	LockLeaseSeconds int `yaml:"lock_lease_seconds"`
}

// TTL returns the dedup key lifetime as a duration.
func (d DedupConfig) TTL() time.Duration { return time.Duration(d.TTLSeconds) * time.Second }

// LockLease returns the source lock lease as a duration.
func (d DedupConfig) LockLease() time.Duration {
	return time.Duration(d.LockLeaseSeconds) * time.Second
}

// ConfidenceConfig tunes agent confidence bookkeeping.
type ConfidenceConfig struct {
	DecayRate     float64 `yaml:"decay_rate"`
	Penalty       float64 `yaml:"penalty"`
	Reinforcement float64 `yaml:"reinforcement"`
}
