// Package cmd provides the CLI commands for notebookrag.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notebook-rag/internal/config"
)

// NewRootCmd creates the root command for the notebookrag CLI.
func NewRootCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:   "notebookrag",
		Short: "Notebook RAG: chat with the files attached to a notebook",
		Long: `notebookrag ingests PDF, Markdown and text files into per-notebook
vector indexes and answers questions grounded only in those files.

Configuration is read from environment variables and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = *loaded
			setupLogging(cmd.ErrOrStderr(), &cfg)
			return nil
		},
	}

	cmd.AddCommand(newServeCmd(&cfg))
	cmd.AddCommand(newNotebooksCmd(&cfg))
	cmd.AddCommand(newIngestCmd(&cfg))
	cmd.AddCommand(newAskCmd(&cfg))
	cmd.AddCommand(newReconcileCmd(&cfg))

	return cmd
}

// Execute runs the root command until it finishes or the process is signaled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setupLogging configures structured logging with the configured level and format.
// Logs go to stderr so command output on stdout stays clean.
func setupLogging(w io.Writer, cfg *config.Config) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)
}
