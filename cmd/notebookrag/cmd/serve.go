package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"notebook-rag/internal/config"
	"notebook-rag/internal/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation schedule",
		Long: `Run the HTTP API on API_PORT.

On start, attachments left Pending by a previous process are marked Error
and orphaned vectors are removed. Orphans are then swept again on
RECONCILE_SCHEDULE. SIGINT or SIGTERM stops accepting requests and waits
for running ingestion jobs before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.reconciler.RecoverPending(ctx); err != nil {
		return fmt.Errorf("failed to recover pending attachments: %w", err)
	}
	if _, err := a.reconciler.SweepOrphans(ctx); err != nil {
		slog.Warn("Startup reconciliation failed", "error", err)
	}

	// Loading the model can take a while; requests wait on it either way.
	go func() {
		if err := a.model.Warmup(ctx); err != nil {
			slog.Warn("LLM warmup failed", "model", a.model.Name(), "error", err)
		}
	}()

	router := http.NewRouter(&http.Deps{
		Notebooks:    a.notebooks,
		Attachments:  a.attachments,
		ChatService:  a.chat,
		Events:       a.events,
		HealthChecks: a.healthChecks,
		Stats:        a.orchestrator.Stats,
	})
	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.reconciler.Run(gctx, cfg.ReconcileSchedule)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// Event streams never end on their own.
		a.events.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API server shutdown incomplete", "error", err)
		}
		if err := a.orchestrator.Wait(shutdownCtx); err != nil {
			slog.Warn("Ingestion jobs still running at exit", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
