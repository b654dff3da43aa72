package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"notebook-rag/internal/config"
)

func newReconcileCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between the attachment ledger and the vector index",
		Long: `Mark attachments left Pending by a stopped process as Error and remove
their vectors, then delete vectors whose attachment no longer exists.

Do not run this while the server is ingesting files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			recovered, err := a.reconciler.RecoverPending(ctx)
			if err != nil {
				return err
			}
			orphans, err := a.reconciler.SweepOrphans(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d pending attachments, removed vectors of %d orphaned attachments\n", recovered, orphans)
			return nil
		},
	}
}
