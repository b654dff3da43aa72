package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"notebook-rag/internal/config"
)

func newNotebooksCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebooks",
		Short: "List notebooks, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			notebooks, err := a.notebooks.List(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tLAST ACCESSED")
			for _, nb := range notebooks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", nb.ID, nb.Title, nb.LastAccessed.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <title>",
		Short: "Create a notebook and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			nb, err := a.notebooks.Create(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nb.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <notebook-id>",
		Short: "Delete a notebook with its attachments and chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return a.notebooks.Delete(ctx, args[0])
		},
	})

	return cmd
}
