// Package cmd defines the frontier command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/app"
	"github.com/JakeFAU/sitemap-frontier/internal/config"
	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/queue"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

type appKeyType string

const appKey appKeyType = "app"

// Runner is what the subcommands need from the application.
type Runner interface {
	Run(ctx context.Context, withWorkers bool) error
	Work(ctx context.Context) error
	Handle(ctx context.Context, payload []byte) crawler.Outcome
	Queue() queue.Queue
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory; tests swap it for a fake.
var newApp = func(ctx context.Context, cfg config.Config, role string) (Runner, error) {
	a, err := app.Build(ctx, cfg, app.Options{Role: role, Version: Version})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "Distributed breadth-first website crawler",
		Long: `frontier crawls websites breadth-first across many stateless workers that
share a frontier store and a work queue. Each task claims one URL, fetches it,
records its internal links, queues newly seen URLs and broadcasts progress.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			runner, err := newApp(cmd.Context(), cfg, cmd.Name())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, runner))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if runner, ok := cmd.Context().Value(appKey).(Runner); ok && runner != nil {
				return runner.Close(cmd.Context())
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env CRAWLER_* overrides it)")

	cmd.AddCommand(newServeCmd(), newWorkCmd(), newSeedCmd(), newTaskCmd())
	return cmd
}

func resolveApp(ctx context.Context) (Runner, error) {
	runner, ok := ctx.Value(appKey).(Runner)
	if !ok || runner == nil {
		return nil, errors.New("application services not initialized")
	}
	return runner, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
