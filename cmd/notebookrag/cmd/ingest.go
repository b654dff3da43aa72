package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"notebook-rag/internal/config"
	"notebook-rag/internal/storage"
)

type ingestOptions struct {
	notebookID string
	title      string
}

func newIngestCmd(cfg *config.Config) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Attach files to a notebook and wait for ingestion",
		Long: `Attach PDF, Markdown or text files to a notebook and index them.

Files are referenced by path, not copied. Each file ends Ready or Error;
the command fails if any file could not be ingested.

Examples:
  notebookrag ingest --notebook 3f1c... notes.md paper.pdf
  notebookrag ingest --title "Biology" chapter1.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.notebookID == "") == (opts.title == "") {
				return fmt.Errorf("exactly one of --notebook or --title is required")
			}
			return runIngest(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.notebookID, "notebook", "", "ID of an existing notebook")
	cmd.Flags().StringVar(&opts.title, "title", "", "Create a new notebook with this title")

	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, opts ingestOptions, paths []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.reconciler.RecoverPending(ctx); err != nil {
		return fmt.Errorf("failed to recover pending attachments: %w", err)
	}

	notebookID := opts.notebookID
	if opts.title != "" {
		nb, err := a.notebooks.Create(ctx, opts.title)
		if err != nil {
			return err
		}
		notebookID = nb.ID
		fmt.Fprintf(out, "notebook %s\n", nb.ID)
	}

	var uploaded []*storage.Attachment
	rejected := 0
	for _, path := range paths {
		att, err := a.attachments.Upload(ctx, notebookID, path)
		if err != nil {
			fmt.Fprintf(out, "%-7s %s: %v\n", "skipped", path, err)
			rejected++
			continue
		}
		uploaded = append(uploaded, att)
	}

	// Jobs survive Ctrl-C so that no row is left Pending.
	if err := a.orchestrator.Wait(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	failed := 0
	for _, att := range uploaded {
		current, err := a.attachmentRepo.GetByID(ctx, att.ID)
		if err != nil {
			slog.Warn("failed to read attachment status", "attachment_id", att.ID, "error", err)
			failed++
			continue
		}
		if current.Status != storage.StatusReady {
			failed++
		}
		fmt.Fprintf(out, "%-7s %s (%s)\n", current.Status, current.FilePath, current.ID)
	}

	stats := a.orchestrator.Stats()
	slog.Info("Ingestion finished", "succeeded", stats.JobsSucceeded, "failed", stats.JobsFailed, "chunks", stats.ChunksEmbedded)

	if failed+rejected > 0 {
		return fmt.Errorf("%d of %d files were not ingested", failed+rejected, len(paths))
	}
	return nil
}
