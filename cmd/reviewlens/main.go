package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewlens/reviewlens/internal/cluster"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/embedder"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/intake"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/normalize"
	"github.com/reviewlens/reviewlens/internal/scheduler"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/internal/topics"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "reviewlens",
		Short: "ReviewLens — concept normalization pipeline for customer reviews",
		Long:  "ReviewLens extracts discrete concepts from customer reviews, clusters near-duplicate labels into canonical forms, and groups the results into cross-review topics.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		backlogCmd(),
		mergesCmd(),
		finalizeCmd(),
		topicsCmd(),
		sweepCmd(),
		importCmd(),
		statsCmd(),
		serveCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(logger *slog.Logger) (store.Store, error) {
	return store.NewSQLiteStore(cfg.Store.DBPath, logger)
}

func newEmbedder(logger *slog.Logger) embedder.Embedder {
	var base embedder.Embedder
	switch cfg.Embeddings.Provider {
	case "ollama":
		base = embedder.NewOllamaEmbedder(
			cfg.Embeddings.BaseURL,
			cfg.Embeddings.Model,
			cfg.Embeddings.Dimension,
			logger,
		)
	default:
		base = embedder.NewOpenAIEmbedder(
			cfg.Embeddings.BaseURL,
			cfg.Embeddings.APIKey,
			cfg.Embeddings.Model,
			cfg.Embeddings.Dimension,
			logger,
		)
	}
	return embedder.NewCachingEmbedder(base, logger)
}

func newExtractor(logger *slog.Logger) extract.Extractor {
	return extract.NewClaudeExtractor(cfg.Anthropic.APIKey, cfg.Anthropic.Model, logger)
}

func newGrouper(logger *slog.Logger) *topics.ClaudeGrouper {
	return topics.NewClaudeGrouper(cfg.Anthropic.APIKey, cfg.Anthropic.Model, logger)
}

func newIntakeController(st store.Store, logger *slog.Logger) *intake.Controller {
	biz := models.BusinessContext{Name: cfg.Business.Name, Category: cfg.Business.Category}
	return intake.NewController(st, newExtractor(logger), biz, cfg.Pipeline, logger)
}

func newResolver(kind models.LabelKind, st store.Store, logger *slog.Logger) (*cluster.Resolver, error) {
	opts, err := cluster.OptionsFromConfig(cfg.Cluster)
	if err != nil {
		return nil, err
	}
	return cluster.NewResolver(kind, st, newEmbedder(logger), opts, cfg.Pipeline, logger)
}

func newTopicService(st store.Store, logger *slog.Logger) *topics.Service {
	grouper := newGrouper(logger)
	return topics.NewService(st, grouper, grouper, cfg.Pipeline, logger)
}

func newSweeper(st store.Store, logger *slog.Logger) *scheduler.Sweeper {
	controller := newIntakeController(st, logger)
	return scheduler.NewSweeper(st, controller, cfg.Scheduler, cfg.Pipeline.DefaultLimit, logger)
}

func newFinalizer(st store.Store, logger *slog.Logger) *normalize.Finalizer {
	return normalize.NewFinalizer(st, cfg.Pipeline, logger)
}
