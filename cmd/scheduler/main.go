package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reels-agent/internal/agent"
	"github.com/reels-agent/internal/agent/compliance"
	"github.com/reels-agent/internal/agent/discovery"
	"github.com/reels-agent/internal/agent/monitoring"
	"github.com/reels-agent/internal/agent/publishing"
	"github.com/reels-agent/internal/agent/scheduling"
	"github.com/reels-agent/internal/agent/scoring"
	"github.com/reels-agent/internal/config"
	"github.com/reels-agent/internal/meta"
	"github.com/reels-agent/internal/orchestrator"
	"github.com/reels-agent/internal/storage"
	"github.com/reels-agent/internal/storage/sqlite"
	"github.com/reels-agent/pkg/logger"
	"github.com/reels-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reels-scheduler",
		Short: "Background scheduler for the reels agent pipeline",
		Long: `Runs the discovery, scoring, compliance, scheduling, publishing and
monitoring agents on their configured cadences for every active account.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting reels agent scheduler")

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start health check server
	go startHealthServer()

	// Initialize rate limiter and Graph API client
	limiter := ratelimit.NewDefaultLimiter()
	platform := meta.NewClient(meta.Config{
		BaseURL:    cfg.Meta.BaseURL,
		APIVersion: cfg.Meta.APIVersion,
	}, limiter, log)

	// Create agents
	runner := agent.NewRunner(repo, cfg.Agents.MaxRetries, cfg.Agents.BaseBackoff(), log)
	discoveryAgent := discovery.NewAgent(repo, platform, log)
	scoringAgent := scoring.NewAgent(repo, log)
	complianceAgent := compliance.NewAgent(repo, log)
	schedulingAgent := scheduling.NewAgent(repo, log)
	publishingAgent := publishing.NewAgent(repo, platform, publishing.Config{
		RateLimitPerHour: cfg.Publishing.RateLimitPerHour,
		MaxRetries:       cfg.Publishing.MaxRetries,
		BaseBackoff:      cfg.Agents.BaseBackoff(),
		ProcessingDelay:  cfg.Publishing.ProcessingDelay(),
	}, log)
	monitoringAgent := monitoring.NewAgent(repo, runner, publishingAgent, schedulingAgent, log)

	// Create and start the orchestrator
	orch := orchestrator.New(
		repo, runner, cfg.Scheduler,
		discoveryAgent, scoringAgent, complianceAgent,
		schedulingAgent, publishingAgent, monitoringAgent,
		cronLogger{log}, log,
	)
	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	log.Info().Msg("Orchestrator started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	orch.Stop()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Reels Agent Scheduler"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
