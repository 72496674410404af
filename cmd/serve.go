package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var apiOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, websocket hub and worker pool",
		Long: `Starts the HTTP API (health, metrics, seeding, sitemap reads, broadcast and
the /ws websocket) together with the in-process worker pool. Use --api-only
when workers run as separate "frontier work" processes; those workers reach
/ws clients only through a shared registry, either realtime.registry=redis
(events relayed on realtime.relay_channel) or a realtime.endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runner.Run(cmd.Context(), !apiOnly)
		},
	}
	cmd.Flags().BoolVar(&apiOnly, "api-only", false, "do not start the worker pool")
	return cmd
}

func newWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Consume crawl tasks from the work queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runner.Work(cmd.Context())
		},
	}
}
