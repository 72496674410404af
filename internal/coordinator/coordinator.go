// Package coordinator runs the per-task crawl state machine:
// Received, Claiming, then Skipped or Fetching, Persisting, Distributing,
// Notifying, Archived.
//
// A Coordinator holds no frontier state between tasks. Every decision is made
// against the FrontierStore, so any number of coordinators may run in
// parallel across processes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
	"github.com/JakeFAU/sitemap-frontier/internal/progress"
)

// Persistence steps labelled on failure metrics.
const (
	stepComplete   = "complete"
	stepDistribute = "distribute"
	stepNotify     = "notify"
	stepArchive    = "archive"
)

const tracerName = "github.com/JakeFAU/sitemap-frontier/internal/coordinator"

// Config controls Coordinator behavior.
type Config struct {
	// MaxFanOut caps how many newly discovered URLs one page may enqueue.
	// Zero means unlimited. All internal links are persisted regardless.
	MaxFanOut int
	// FetchTimeout bounds the page fetch. Zero means no extra bound.
	FetchTimeout time.Duration
	// TaskTimeout bounds the whole task. Zero means no extra bound.
	TaskTimeout time.Duration
}

// TaskIDs produces identifiers for progress events.
type TaskIDs interface {
	NewTaskID() uuid.UUID
}

type randomTaskIDs struct{}

func (randomTaskIDs) NewTaskID() uuid.UUID { return uuid.New() }

// Deps groups the collaborators of a Coordinator. Only Frontier, Pages and
// Distributor are required. A nil TracerProvider uses the global one.
type Deps struct {
	Frontier    crawler.FrontierStore
	Pages       crawler.PageFetcher
	Distributor crawler.Distributor
	Notifier    crawler.Notifier
	Archiver    crawler.Archiver
	Emitter     progress.Emitter
	Clock       crawler.Clock
	IDs         TaskIDs

	TracerProvider trace.TracerProvider
}

// Coordinator processes crawl tasks one at a time per call.
type Coordinator struct {
	frontier    crawler.FrontierStore
	pages       crawler.PageFetcher
	distributor crawler.Distributor
	notifier    crawler.Notifier
	archiver    crawler.Archiver
	emitter     progress.Emitter
	clock       crawler.Clock
	ids         TaskIDs
	tracer      trace.Tracer
	cfg         Config
	logger      *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New constructs a Coordinator. Frontier, Pages, and Distributor are required.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if deps.Frontier == nil {
		return nil, errors.New("frontier store is required")
	}
	if deps.Pages == nil {
		return nil, errors.New("page fetcher is required")
	}
	if deps.Distributor == nil {
		return nil, errors.New("distributor is required")
	}
	if cfg.MaxFanOut < 0 {
		return nil, fmt.Errorf("max fan-out must be >= 0, got %d", cfg.MaxFanOut)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = randomTaskIDs{}
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = otel.GetTracerProvider()
	}
	return &Coordinator{
		frontier:    deps.Frontier,
		pages:       deps.Pages,
		distributor: deps.Distributor,
		notifier:    deps.Notifier,
		archiver:    deps.Archiver,
		emitter:     deps.Emitter,
		clock:       deps.Clock,
		ids:         deps.IDs,
		tracer:      deps.TracerProvider.Tracer(tracerName),
		cfg:         cfg,
		logger:      logger.Named("coordinator"),
	}, nil
}

// Handle decodes a raw task payload and processes it. Malformed payloads
// yield an error outcome and are dropped.
func (c *Coordinator) Handle(ctx context.Context, payload []byte) crawler.Outcome {
	run := c.newRun()
	run.emit(progress.Event{Stage: progress.StageTaskReceived})

	task, err := crawler.DecodeTask(payload)
	if err != nil {
		c.logger.Warn("dropping malformed task", zap.Error(err))
		return run.fail(crawler.Outcome{}, err)
	}
	return c.process(ctx, run, task)
}

// Process runs the state machine for an already decoded task.
func (c *Coordinator) Process(ctx context.Context, task crawler.Task) crawler.Outcome {
	run := c.newRun()
	run.emit(progress.Event{Stage: progress.StageTaskReceived})
	return c.process(ctx, run, task)
}

func (c *Coordinator) process(ctx context.Context, run *taskRun, task crawler.Task) (outcome crawler.Outcome) {
	ctx, span := c.tracer.Start(ctx, "coordinator.process",
		trace.WithAttributes(attribute.String("page_url", task.PageURL)))
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", string(outcome.Status)),
			attribute.Int("new_urls_queued", outcome.Queued),
		)
		if outcome.Status == crawler.OutcomeError {
			span.SetStatus(codes.Error, outcome.Reason)
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task panicked", zap.String("url", task.PageURL), zap.Any("panic", r))
			outcome = run.fail(outcome, fmt.Errorf("panic: %v", r))
		}
	}()

	if c.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TaskTimeout)
		defer cancel()
	}

	pageURL, err := crawler.NormalizeURL(task.PageURL)
	if err != nil {
		return run.fail(crawler.Outcome{URL: task.PageURL}, fmt.Errorf("%w: %w", crawler.ErrMalformedTask, err))
	}
	domain, err := crawler.DomainOf(pageURL)
	if err != nil {
		return run.fail(crawler.Outcome{URL: pageURL}, fmt.Errorf("%w: %w", crawler.ErrMalformedTask, err))
	}
	outcome = crawler.Outcome{URL: pageURL, Domain: domain}
	logger := c.logger.With(zap.String("url", pageURL), zap.String("domain", domain))

	// Claiming
	claim, err := c.frontier.TryClaim(ctx, pageURL, domain)
	if err != nil {
		return run.fail(outcome, fmt.Errorf("claim: %w", err))
	}
	metrics.ObserveClaim(string(claim))
	outcome.Claim = claim
	if !claim.Acquired() {
		logger.Debug("task skipped", zap.String("claim", string(claim)))
		outcome.Status = crawler.OutcomeSkipped
		outcome.Reason = string(claim)
		outcome.Duration = run.elapsed()
		run.emit(progress.Event{
			Stage:  progress.StageTaskSkipped,
			Domain: domain,
			URL:    pageURL,
			Note:   string(claim),
			Dur:    outcome.Duration,
		})
		return outcome
	}

	// Fetching
	result, fetchErr := c.fetch(ctx, run, pageURL, domain)
	if fetchErr != nil {
		logger.Warn("fetch failed; completing url with no links", zap.Error(fetchErr))
		outcome.Reason = fetchErr.Error()
	}
	internal := result.Links.Internal

	// Persisting
	if err := c.frontier.Complete(ctx, pageURL, domain, internal); err != nil {
		c.persistenceFailure(logger, stepComplete, err)
	}

	// Distributing
	outcome.InternalLinks = len(internal)
	outcome.Queued = c.distribute(ctx, logger, domain, internal)

	// Notifying
	if c.notifier != nil {
		if err := c.notifier.NotifySitemapUpdate(ctx, domain, len(internal)); err != nil {
			c.persistenceFailure(logger, stepNotify, err)
		}
	}

	// Archived
	if fetchErr == nil && c.archiver != nil {
		record := crawler.ArchiveRecord{
			PageURL:   pageURL,
			Domain:    domain,
			Timestamp: c.clock.Now(),
			Result:    result,
		}
		if err := c.archiver.Archive(ctx, record); err != nil {
			c.persistenceFailure(logger, stepArchive, err)
		}
	}

	outcome.Status = crawler.OutcomeCompleted
	outcome.Duration = run.elapsed()
	run.emit(progress.Event{
		Stage:  progress.StageTaskDone,
		Domain: domain,
		URL:    pageURL,
		Links:  int64(outcome.InternalLinks),
		Queued: int64(outcome.Queued),
		Dur:    outcome.Duration,
		Note:   outcome.Reason,
	})
	logger.Info("task completed",
		zap.Int("internal_links_found", outcome.InternalLinks),
		zap.Int("new_urls_queued", outcome.Queued),
		zap.Duration("duration", outcome.Duration))
	return outcome
}

func (c *Coordinator) fetch(ctx context.Context, run *taskRun, pageURL, domain string) (crawler.PageResult, error) {
	fetchCtx := ctx
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}

	start := c.clock.Now()
	result, err := c.pages.FetchPage(fetchCtx, pageURL)
	dur := c.clock.Now().Sub(start)
	if err != nil {
		var fetchErr *crawler.FetchError
		status := progress.StatusOther
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			status = progress.ClassifyStatus(fetchErr.StatusCode)
		}
		run.emit(progress.Event{
			Stage:       progress.StageFetchError,
			Domain:      domain,
			URL:         pageURL,
			StatusClass: status,
			Dur:         dur,
			Note:        err.Error(),
		})
		return crawler.PageResult{}, err
	}
	run.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		Domain:      domain,
		URL:         pageURL,
		StatusClass: progress.Status2xx,
		Dur:         dur,
	})
	return result, nil
}

// distribute enqueues the unknown subset of links, capped at MaxFanOut.
func (c *Coordinator) distribute(ctx context.Context, logger *zap.Logger, domain string, links []string) int {
	if len(links) == 0 {
		return 0
	}
	fresh := c.distributor.FilterUnknown(ctx, domain, links)
	if c.cfg.MaxFanOut > 0 && len(fresh) > c.cfg.MaxFanOut {
		logger.Debug("fan-out limit applied",
			zap.Int("discovered", len(fresh)),
			zap.Int("limit", c.cfg.MaxFanOut))
		fresh = fresh[:c.cfg.MaxFanOut]
	}
	if len(fresh) == 0 {
		return 0
	}
	queued, err := c.distributor.Enqueue(ctx, fresh)
	if err != nil {
		c.persistenceFailure(logger, stepDistribute, err)
	}
	return queued
}

func (c *Coordinator) persistenceFailure(logger *zap.Logger, step string, err error) {
	metrics.ObservePersistenceFailure(step)
	switch {
	case errors.Is(err, crawler.ErrDomainNotFound), errors.Is(err, crawler.ErrAlreadyCompleted):
		logger.Warn("frontier update skipped", zap.String("step", step), zap.Error(err))
	default:
		logger.Error("persistence step failed; continuing", zap.String("step", step), zap.Error(err))
	}
}

// taskRun carries per-invocation event state.
type taskRun struct {
	id      [16]byte
	started time.Time
	c       *Coordinator
}

func (c *Coordinator) newRun() *taskRun {
	return &taskRun{
		id:      progress.UUIDToBytes(c.ids.NewTaskID()),
		started: c.clock.Now(),
		c:       c,
	}
}

func (r *taskRun) elapsed() time.Duration {
	d := r.c.clock.Now().Sub(r.started)
	if d < 0 {
		return 0
	}
	return d
}

func (r *taskRun) emit(evt progress.Event) {
	evt.TaskID = r.id
	evt.TS = r.c.clock.Now().UTC()
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	r.c.emitter.Emit(evt)
}

func (r *taskRun) fail(outcome crawler.Outcome, err error) crawler.Outcome {
	outcome.Status = crawler.OutcomeError
	outcome.Reason = err.Error()
	outcome.Duration = r.elapsed()
	r.emit(progress.Event{
		Stage:  progress.StageTaskError,
		Domain: outcome.Domain,
		URL:    outcome.URL,
		Dur:    outcome.Duration,
		Note:   outcome.Reason,
	})
	return outcome
}
