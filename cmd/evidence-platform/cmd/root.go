// Package cmd implements the evidence-platform CLI surface: ingest,
// analyze, correlate, process-case, reanalyze, case, and storage
// subcommands, built with cobra following the source organization's CLI
// convention.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/ai"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/index"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/logging"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/messaging"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/storage"
	"github.com/csic-platform/forensic-evidence-platform/internal/config"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/correlate"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/pattern"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/pipeline"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/store"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/summary"
)

var (
	cfgFile string
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:           "evidence-platform",
	Short:         "Forensic evidence analysis platform for legal case work",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.AddCommand(ingestCmd, analyzeCmd, correlateCmd, processCaseCmd, reanalyzeCmd, caseCmd, storageCmd)
}

// app bundles every wired component the subcommands need. Built once per
// invocation from config.Load + the adapters registered for whichever
// backends are enabled.
type app struct {
	cfg          *config.Config
	logger       ports.Logger
	store        ports.EvidenceStore
	analyzer     *analyze.Service
	engine       *correlate.Engine
	detector     *pattern.Detector
	aggregator   *summary.Aggregator
	orchestrator *pipeline.Orchestrator
	events       ports.EventPublisher
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logLevel := cfg.Log.Level
	if quiet {
		logLevel = "error"
	}
	zlog, err := logging.New(logLevel, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	blob, err := storage.NewLocalStorage(cfg.Store.RootPath, zlog)
	if err != nil {
		return nil, fmt.Errorf("init local storage: %w", err)
	}

	var mirror store.Mirror
	if cfg.S3.Enabled {
		s3, err := storage.NewS3Store(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL, zlog)
		if err != nil {
			return nil, fmt.Errorf("init s3 mirror: %w", err)
		}
		mirror = s3
	}

	var searchIndex ports.SearchIndex
	if cfg.Postgres.Enabled {
		pgIndex, err := index.NewPostgresIndex(cfg.Postgres.DSN, zlog)
		if err != nil {
			return nil, fmt.Errorf("init postgres index: %w", err)
		}
		searchIndex = pgIndex
	}

	var events ports.EventPublisher
	if cfg.Kafka.Enabled {
		events = messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog)
	} else {
		events = messaging.NoopPublisher{}
	}

	evidenceStore := store.New(blob, mirror, searchIndex, events, zlog)

	var aiProvider ports.AIProvider
	if cfg.AI.Provider == "fake" {
		aiProvider = ai.NewFakeProvider()
	} else if apiKey := os.Getenv(cfg.AI.APIKeyEnv); apiKey != "" {
		baseProvider := ai.NewHTTPProvider(cfg.AI.Provider, providerBaseURL(cfg.AI.Provider), apiKey, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.MaxRetries, zlog)
		if cfg.Redis.Enabled {
			aiProvider = ai.NewCachingProvider(baseProvider, cfg.Redis.Addr, cfg.Redis.DB, 0, zlog)
		} else {
			aiProvider = baseProvider
		}
	} else {
		zlog.Warn("no AI API key configured, AI-dependent stages will degrade to null output", "api_key_env", cfg.AI.APIKeyEnv)
		aiProvider = ai.NewUnavailableProvider()
	}

	registry := analyze.NewRegistry()
	analyzer := analyze.NewService(aiProvider, registry, analyze.NewDefaultTextExtractor(), analyze.NewDefaultEmailParser(), zlog)

	engine := correlate.NewEngine(aiProvider, correlate.Config{
		TemporalWindowHours: cfg.Correlation.TemporalWindowHours,
		GapThresholdHours:   cfg.Correlation.GapThresholdHours,
		AIResolveMaxPairs:   cfg.Correlation.AIResolveMaxPairs,
	}, zlog)

	detector := pattern.NewDetector(aiProvider, registry, pattern.Config{
		TopEntities:  cfg.Correlation.PatternTopEntities,
		RecentEvents: cfg.Correlation.PatternRecentEvents,
		SummaryCount: cfg.Correlation.PatternSummaryCount,
	}, zlog)

	aggregator := summary.NewAggregator(aiProvider, registry, summary.Config{}, zlog)

	orchestrator := pipeline.NewOrchestrator(evidenceStore, analyzer, engine, detector, aggregator, events,
		pipeline.Config{AIConcurrency: cfg.AI.Concurrency}, zlog)

	return &app{
		cfg: cfg, logger: zlog, store: evidenceStore, analyzer: analyzer, engine: engine,
		detector: detector, aggregator: aggregator, orchestrator: orchestrator, events: events,
	}, nil
}

func providerBaseURL(provider string) string {
	switch provider {
	case "anthropic":
		return "https://api.anthropic.com/v1"
	default:
		return "https://api.openai.com/v1"
	}
}
