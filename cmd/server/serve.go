package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talhaa23/portfolio-agent/internal/agent"
	"github.com/talhaa23/portfolio-agent/internal/analytics"
	"github.com/talhaa23/portfolio-agent/internal/api"
	"github.com/talhaa23/portfolio-agent/internal/auth"
	"github.com/talhaa23/portfolio-agent/internal/core"
	"github.com/talhaa23/portfolio-agent/internal/ingest"
	"github.com/talhaa23/portfolio-agent/internal/portfolio"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	profile, err := portfolio.Load(d.cfg.PortfolioFile)
	if err != nil {
		return err
	}
	tools, err := profile.Tools()
	if err != nil {
		return err
	}
	registry, err := agent.NewRegistry(tools...)
	if err != nil {
		return err
	}

	if n, err := d.store.CountChunks(ctx); err != nil {
		log.WithError(err).Warn("Could not count document chunks")
	} else if n == 0 {
		log.Warn("No document chunks stored yet; answers will rely on tools only")
	} else {
		log.WithField("chunks", n).Info("Vector store ready")
	}

	ragService := core.NewRAGService(d.store, d.llm)
	runner := agent.NewRunner(d.llm, registry)
	chatService := core.NewChatService(d.store, ragService, runner, profile.Owner, d.cfg.ChatHistoryWindow)
	defer chatService.Wait()

	if d.cfg.AdminPassword == "" && d.cfg.AdminPasswordHash == "" {
		log.Warn("ADMIN_PASSWORD is not set; admin endpoints are disabled")
	}
	authenticator := auth.NewAuthenticator(d.cfg.JWTSecret, d.cfg.AdminPassword, d.cfg.AdminPasswordHash)

	apiHandler := api.NewAPIHandler(
		chatService,
		ingest.NewService(d.llm, d.store),
		analytics.NewService(d.store),
		authenticator,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", d.cfg.HTTPPort),
		Handler:      api.NewRouter(apiHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exiting gracefully")
	return nil
}
