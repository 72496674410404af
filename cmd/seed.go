package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed URL...",
		Short: "Queue the first page of one or more sites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			for _, raw := range args {
				pageURL, err := crawler.NormalizeURL(raw)
				if err != nil {
					return fmt.Errorf("seed %q: %w", raw, err)
				}
				if err := runner.Queue().Enqueue(cmd.Context(), crawler.Task{PageURL: pageURL}); err != nil {
					return fmt.Errorf("seed %q: %w", pageURL, err)
				}
				runner.Logger().Info("seed queued", zap.String("url", pageURL))
				fmt.Fprintln(cmd.OutOrStdout(), pageURL)
			}
			return nil
		},
	}
}

func newTaskCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "task [URL]",
		Short: "Run a single crawl task in the foreground and print its outcome",
		Long: `Runs one task through the coordinator exactly as a queue delivery would.
Pass a URL, or a raw payload such as {"pageUrl": "..."} with --payload.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			raw := []byte(payload)
			switch {
			case len(args) == 1 && payload != "":
				return fmt.Errorf("pass either a URL or --payload, not both")
			case len(args) == 1:
				raw, err = crawler.EncodeTask(crawler.Task{PageURL: args[0]})
				if err != nil {
					return err
				}
			case payload == "":
				return fmt.Errorf("a URL or --payload is required")
			}

			outcome := runner.Handle(cmd.Context(), raw)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(outcome); err != nil {
				return fmt.Errorf("encode outcome: %w", err)
			}
			if outcome.Status == crawler.OutcomeError {
				return fmt.Errorf("task failed: %s", outcome.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "raw task payload JSON")
	return cmd
}
