// Package app builds the frontier's long-lived services from configuration
// and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitemap-frontier/internal/api"
	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
	"github.com/JakeFAU/sitemap-frontier/internal/config"
	"github.com/JakeFAU/sitemap-frontier/internal/coordinator"
	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/dispatcher"
	"github.com/JakeFAU/sitemap-frontier/internal/logging"
	"github.com/JakeFAU/sitemap-frontier/internal/progress"
	"github.com/JakeFAU/sitemap-frontier/internal/queue"
	"github.com/JakeFAU/sitemap-frontier/internal/realtime"
	"github.com/JakeFAU/sitemap-frontier/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Options overrides collaborators that are otherwise built from config.
type Options struct {
	// Logger defaults to one built from cfg.Logging.
	Logger *zap.Logger
	// Registerer receives the progress collectors. Defaults to the global registry.
	Registerer prometheus.Registerer
	// Fetcher replaces the colly fetcher.
	Fetcher crawler.Fetcher
	// GoogleOptions are passed to the Pub/Sub and GCS clients.
	GoogleOptions []option.ClientOption
	// Version is reported on traces.
	Version string
	// Role tags logs with the process role, such as serve or work.
	Role string
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds every shared service of one frontier process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	frontier    crawler.FrontierStore
	queue       queue.Queue
	gateway     *broadcast.Gateway
	hub         *realtime.Hub
	relay       *realtime.RedisRelay
	progressHub *progress.Hub
	coordinator *coordinator.Coordinator
	dispatch    *dispatcher.Dispatcher
	apiServer   *api.Server

	closers   []closer
	closeOnce sync.Once
	closeErr  error
	tracer    *sdktrace.TracerProvider
	tracing   telemetry.ShutdownFunc
}

// Build creates every dependency named by cfg. On failure, whatever was
// already opened is closed again.
func Build(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Environment: cfg.Environment,
			Role:        opts.Role,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.Background()); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
		}
	}()

	logger.Info("building application",
		zap.String("environment", cfg.Environment),
		zap.String("frontier", cfg.Frontier.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("stats", cfg.Stats.Backend),
		zap.Bool("in_process_realtime", cfg.InProcessRealtime()),
	)

	a.tracer, a.tracing, err = telemetry.Init(ctx, telemetry.Options{
		ServiceName: "sitemap-frontier",
		Version:     opts.Version,
		Environment: cfg.Environment,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	w := newWiring(a, opts)
	if err := w.build(ctx); err != nil {
		return nil, err
	}
	logger.Info("application built", zap.Int("workers", cfg.Crawler.Workers))
	return a, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Coordinator returns the task state machine.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coordinator }

// Handle runs one raw task payload through the coordinator.
func (a *App) Handle(ctx context.Context, payload []byte) crawler.Outcome {
	return a.coordinator.Handle(ctx, payload)
}

// Queue returns the configured work queue.
func (a *App) Queue() queue.Queue { return a.queue }

// Frontier returns the configured frontier store.
func (a *App) Frontier() crawler.FrontierStore { return a.frontier }

// Gateway returns the broadcast gateway.
func (a *App) Gateway() *broadcast.Gateway { return a.gateway }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Run serves the HTTP API and, when withWorkers is set, the dispatcher, until
// ctx ends or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context, withWorkers bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if a.relay != nil && a.hub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.relay.Run(ctx, a.hub); err != nil {
				a.logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}
	if withWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Workers))
			a.dispatch.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.hub != nil {
		a.hub.Close()
	}
	wg.Wait()

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Work runs only the dispatcher until ctx ends, a signal arrives, or the
// queue closes.
func (a *App) Work(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Workers))
	a.dispatch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Close(shutdownCtx)
}

// Close releases every service in reverse build order, then flushes progress
// and traces. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.queue != nil {
			if err := a.queue.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close queue: %w", err))
			}
		}
		if a.hub != nil {
			a.hub.Close()
		}
		if a.progressHub != nil {
			if err := a.progressHub.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close progress hub: %w", err))
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.fn(ctx); err != nil {
				a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		if a.tracing != nil {
			if err := a.tracing(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
