// Reviewd runs the legal-document review pipeline service.
//
// It exposes an HTTP API for opening matters, polling their review
// progress, and ingesting reference documents into the knowledge base.
// Each matter is driven through the nine-stage pipeline in the
// background; the UI polls the matter for live state.
//
// Usage:
//
//	# Start with defaults
//	REVIEWD_LLM_API_KEY=... reviewd
//
//	# With a config file
//	reviewd --config /etc/reviewd/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/chunking"
	"github.com/fyrsmithlabs/reviewd/internal/config"
	"github.com/fyrsmithlabs/reviewd/internal/embeddings"
	"github.com/fyrsmithlabs/reviewd/internal/httpapi"
	"github.com/fyrsmithlabs/reviewd/internal/llm"
	"github.com/fyrsmithlabs/reviewd/internal/logging"
	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/pipeline"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
	"github.com/fyrsmithlabs/reviewd/internal/stages"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var configPath, logLevel string

	root := &cobra.Command{
		Use:          "reviewd",
		Short:        "Multi-stage legal-document review service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.Flags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reviewd %s (%s)\n", version, gitCommit)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting reviewd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
	)

	registry := prometheus.NewRegistry()

	llmClient, err := llm.NewAnthropicClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		RateLimit:  cfg.LLM.RateLimit,
		MaxRetries: cfg.LLM.MaxRetries,
		Metrics:    llm.NewMetrics(registry),
	})
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	vectorStore, err := retrieval.NewStore(retrieval.StoreConfig{
		Path:       cfg.Vector.Path,
		Collection: cfg.Vector.Collection,
		Compress:   cfg.Vector.Compress,
	}, embedder, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}

	retriever := retrieval.NewRetriever(vectorStore, llmClient, retrieval.Defaults{
		TopK:       cfg.Retrieval.TopK,
		MinScore:   float32(cfg.Retrieval.MinScore),
		NumQueries: cfg.Retrieval.NumQueries,
		MaxChunks:  cfg.Retrieval.MaxChunks,
	}, logger)
	ingestor := retrieval.NewIngestor(vectorStore,
		chunking.NewOverlapChunker(chunking.OverlapConfig{}), 1, logger)

	store := matter.NewMemoryStore()
	citations := matter.NewMemoryCitations()

	metrics := pipeline.NewMetrics(registry)

	runners := stages.All(stages.Deps{
		Store:       store,
		LLM:         llmClient,
		Retriever:   retriever,
		Indexer:     ingestor,
		Citations:   citations,
		Logger:      logger,
		StreamDelay: cfg.Pipeline.StreamDelay,
	})

	engine, err := pipeline.NewEngine(store, runners, pipeline.Config{
		StageDelay: cfg.Pipeline.StageDelay,
	}, metrics, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline engine: %w", err)
	}

	server, err := httpapi.NewServer(store, engine, ingestor, registry, logger.Named("http"), httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
