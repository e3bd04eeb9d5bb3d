package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talhaa23/portfolio-agent/internal/config"
	"github.com/talhaa23/portfolio-agent/internal/core"
	"github.com/talhaa23/portfolio-agent/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "portfolio-agent",
		Short:        "Portfolio chat assistant backed by Gemini and a vector store",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newIngestCommand(), newHashPasswordCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// deps are the services shared by every subcommand.
type deps struct {
	cfg   *config.Config
	store *store.Store
	llm   *core.LLMService
}

func setup(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	dbStore, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.EmbeddingDims)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	llmService, err := core.NewLLMService(ctx, cfg)
	if err != nil {
		_ = dbStore.Close()
		return nil, err
	}

	return &deps{cfg: cfg, store: dbStore, llm: llmService}, nil
}

func (d *deps) Close() {
	d.llm.Close()
	if err := d.store.Close(); err != nil {
		log.WithError(err).Warn("Error closing database")
	}
}
