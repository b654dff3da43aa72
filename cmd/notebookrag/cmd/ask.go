package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"notebook-rag/internal/config"
	"notebook-rag/internal/service"
)

type askOptions struct {
	notebookID string
	format     string
	debug      bool
}

func newAskCmd(cfg *config.Config) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a notebook's files",
		Long: `Ask a question answered only from the notebook's attached files.

The question and the answer are added to the notebook's chat history.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, cfg, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.notebookID, "notebook", "", "ID of the notebook (required)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Include retrieved chunks and the prompt")
	_ = cmd.MarkFlagRequired("notebook")

	return cmd
}

func runAsk(cmd *cobra.Command, cfg *config.Config, opts askOptions, question string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("--format must be text or json, got %q", opts.format)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.chat.Send(ctx, service.ChatRequest{
		NotebookID: opts.notebookID,
		Message:    question,
		Debug:      opts.debug,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(out, resp.Entry.Message)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for i, s := range resp.Sources {
			fmt.Fprintf(out, "  %d. %s (distance %.3f)\n", i+1, s.Path, s.Distance)
		}
	}
	return nil
}
