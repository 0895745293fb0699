// Strands triage server — ingests alert webhooks, correlates and triages
// them, and dispatches swarm investigations for clusters that warrant one.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strandsops/strands/pkg/agents"
	"github.com/strandsops/strands/pkg/api"
	"github.com/strandsops/strands/pkg/confidence"
	"github.com/strandsops/strands/pkg/config"
	"github.com/strandsops/strands/pkg/correlation"
	"github.com/strandsops/strands/pkg/database"
	"github.com/strandsops/strands/pkg/decision"
	"github.com/strandsops/strands/pkg/dedup"
	"github.com/strandsops/strands/pkg/ledger"
	"github.com/strandsops/strands/pkg/llm"
	"github.com/strandsops/strands/pkg/pipeline"
	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
	"github.com/strandsops/strands/pkg/trend"
	"github.com/strandsops/strands/pkg/vector"
	"github.com/strandsops/strands/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting strands",
		"version", version.Full(),
		"addr", cfg.Server.Addr(),
		"config_dir", *configDir)

	// 2. Ledger: PostgreSQL when configured, in-memory otherwise
	var store ledger.Ledger
	var dbClient *database.Client
	if cfg.Database.Enabled {
		dbClient, err = database.NewClient(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password(),
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
		}.WithPoolDefaults())
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		store = ledger.NewPostgres(dbClient.DB(), logger)
		slog.Info("Connected to PostgreSQL ledger")
	} else {
		store = ledger.NewMemory()
		slog.Warn("Database disabled, runs are persisted in memory only")
	}

	// 3. Deduplication: Redis when configured, in-process otherwise
	dedupCfg := dedup.Config{TTL: cfg.Dedup.TTL(), LockLease: cfg.Dedup.LockLease()}
	var deduper swarm.Deduper
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("Error closing Redis client", "error", err)
			}
		}()
		deduper = dedup.New(rdb, dedupCfg, logger)
		slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	} else {
		deduper = dedup.NewLocal(dedupCfg)
		slog.Warn("Redis disabled, deduplication is per-instance only")
	}

	// 4. LLM client behind a circuit breaker
	llmClient := llm.NewBreakerClient("llm", llm.NewClient(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey(),
		Model:    cfg.LLM.Model,
	}, logger), logger)
	slog.Info("LLM client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// 5. Agents and retry policies
	analyzer := trend.NewAnalyzer(trend.AnalyzerConfig{
		DegradingThreshold:  cfg.Trend.DegradingThreshold,
		RecoveringThreshold: cfg.Trend.RecoveringThreshold,
		LookbackSeconds:     cfg.Trend.LookbackMinutes * 60,
	}, logger)

	registry := swarm.NewRegistry()
	agents.RegisterBuiltins(registry, llmClient, analyzer)

	policies := policy.NewRegistry()
	policies.Register(policy.NewExponentialBackoff(2*time.Second, 60*time.Second, 3))

	// 6. Confidence tracking and the swarm coordinator
	confSvc := confidence.NewService(store, policy.FixedConfidencePolicy{
		Penalty:       cfg.Confidence.Penalty,
		Reinforcement: cfg.Confidence.Reinforcement,
	}, logger)

	stepDeadline := time.Duration(cfg.Swarm.StepDeadlineSeconds) * time.Second
	coordinator := swarm.NewCoordinator(
		swarm.NewOrchestrator(registry, stepDeadline, logger),
		swarm.NewRetryController(policies, logger),
		swarm.NewDecisionController(confSvc, nil, logger),
		confSvc,
		deduper,
		store,
		swarm.CoordinatorConfig{
			MaxRetryRounds:       cfg.Swarm.MaxRetryRounds,
			MaxTotalAttempts:     cfg.Swarm.MaxTotalAttempts,
			MaxRuntime:           time.Duration(cfg.Swarm.MaxRuntimeSeconds) * time.Second,
			UseLLMFallback:       cfg.Swarm.UseLLMFallback,
			LLMFallbackThreshold: cfg.Swarm.LLMFallbackThreshold,
			LLMAgentID:           agents.HypothesisAgentID,
			ConfidenceDecayRate:  cfg.Confidence.DecayRate,
		},
		logger,
	)

	// 7. Triage pipeline
	rules := decision.NewRuleEngine()
	rules.AcceptThreshold = cfg.Decision.AcceptThreshold

	index := vector.NewMemoryStore()
	fallback := decision.NewFallback(index, llmClient, decision.FallbackConfig{
		SemanticThreshold: cfg.Decision.SemanticThreshold,
	}, logger)

	decider := decision.NewEngine(rules, fallback, logger)
	decider.LLMThreshold = cfg.Decision.LLMThreshold

	correlator := correlation.NewEngine(correlation.Config{
		TimeWindow:         time.Duration(cfg.Correlation.WindowMinutes) * time.Minute,
		GroupByFingerprint: true,
		GroupByService:     true,
	})

	intake := pipeline.NewService(correlator, analyzer, decider, coordinator,
		nil, index, pipeline.DefaultConfig(), logger)

	// 8. HTTP server, blocks until a shutdown signal arrives
	server := api.NewServer(intake, store, dbClient, logger)
	shutdownTimeout := time.Duration(cfg.Server.ShutdownSeconds) * time.Second
	if err := server.ListenAndServe(ctx, cfg.Server.Addr(), shutdownTimeout); err != nil {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
