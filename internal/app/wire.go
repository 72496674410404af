package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/api"
	"github.com/JakeFAU/sitemap-frontier/internal/archive"
	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
	"github.com/JakeFAU/sitemap-frontier/internal/clock/system"
	"github.com/JakeFAU/sitemap-frontier/internal/config"
	"github.com/JakeFAU/sitemap-frontier/internal/coordinator"
	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/dispatcher"
	"github.com/JakeFAU/sitemap-frontier/internal/distributor"
	collyfetcher "github.com/JakeFAU/sitemap-frontier/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-frontier/internal/graph"
	"github.com/JakeFAU/sitemap-frontier/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-frontier/internal/id/uuid"
	"github.com/JakeFAU/sitemap-frontier/internal/page"
	"github.com/JakeFAU/sitemap-frontier/internal/progress"
	progresssinks "github.com/JakeFAU/sitemap-frontier/internal/progress/sinks"
	"github.com/JakeFAU/sitemap-frontier/internal/queue"
	kafkaqueue "github.com/JakeFAU/sitemap-frontier/internal/queue/kafka"
	memoryqueue "github.com/JakeFAU/sitemap-frontier/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/sitemap-frontier/internal/queue/pubsub"
	"github.com/JakeFAU/sitemap-frontier/internal/realtime"
	gcsstorage "github.com/JakeFAU/sitemap-frontier/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitemap-frontier/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitemap-frontier/internal/storage/memory"
	mongostore "github.com/JakeFAU/sitemap-frontier/internal/storage/mongo"
	pgstore "github.com/JakeFAU/sitemap-frontier/internal/storage/postgres"
	redisstore "github.com/JakeFAU/sitemap-frontier/internal/storage/redis"
	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

const (
	redisKeyPrefix = "frontier"
	archiveHashLen = 12
)

// wiring carries shared clients while Build assembles the App, so that
// backends pointed at the same Postgres DSN or Redis address share one pool.
type wiring struct {
	app    *App
	cfg    config.Config
	opts   Options
	logger *zap.Logger
	clock  crawler.Clock
	ids    *uuid.Generator

	pools  map[string]*pgxpool.Pool
	redis  map[string]*goredis.Client
	ready  map[string]api.ReadyCheck
	stats  store.StatsRepository
	pages  crawler.PageFetcher
	store  crawler.Archiver
	distro *distributor.Distributor
}

func newWiring(a *App, opts Options) *wiring {
	return &wiring{
		app:    a,
		cfg:    a.cfg,
		opts:   opts,
		logger: a.logger,
		clock:  system.New(),
		ids:    uuid.New(),
		pools:  make(map[string]*pgxpool.Pool),
		redis:  make(map[string]*goredis.Client),
		ready:  make(map[string]api.ReadyCheck),
	}
}

func (w *wiring) build(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"frontier", w.setupFrontier},
		{"queue", w.setupQueue},
		{"realtime", w.setupRealtime},
		{"stats", w.setupStats},
		{"progress", w.setupProgress},
		{"archive", w.setupArchive},
		{"fetcher", w.setupFetcher},
		{"coordinator", w.setupCoordinator},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s init failed: %w", step.name, err)
		}
	}
	w.setupAPI()
	return nil
}

func (w *wiring) pool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if pool, ok := w.pools[dsn]; ok {
		return pool, nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{DSN: dsn})
	if err != nil {
		return nil, err
	}
	w.pools[dsn] = pool
	w.app.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	w.ready[fmt.Sprintf("postgres_%d", len(w.pools))] = pool.Ping
	return pool, nil
}

func (w *wiring) redisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	if c, ok := w.redis[addr]; ok {
		return c, nil
	}
	c, err := redisstore.NewClient(ctx, addr)
	if err != nil {
		return nil, err
	}
	w.redis[addr] = c
	w.app.onClose("redis", func(context.Context) error { return c.Close() })
	w.ready["redis_"+addr] = func(ctx context.Context) error { return c.Ping(ctx).Err() }
	return c, nil
}

func (w *wiring) setupFrontier(ctx context.Context) error {
	cfg := w.cfg.Frontier
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := w.pool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		fs, err := pgstore.NewFrontierStore(pool, cfg.Table, w.clock)
		if err != nil {
			return err
		}
		if err := fs.EnsureSchema(ctx); err != nil {
			return err
		}
		w.app.frontier = fs
		w.logger.Info("using postgres frontier store", zap.String("table", cfg.Table))
	case config.BackendRedis:
		client, err := w.redisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		w.app.frontier = redisstore.NewFrontierStore(client, redisKeyPrefix, w.clock)
		w.logger.Info("using redis frontier store", zap.String("addr", cfg.RedisAddr))
	default:
		w.app.frontier = memorystorage.NewFrontierStore(w.clock)
		w.logger.Info("using in-memory frontier store")
	}
	return nil
}

func (w *wiring) setupQueue(ctx context.Context) error {
	cfg := w.cfg.Queue
	var (
		q   queue.Queue
		err error
	)
	switch cfg.Backend {
	case config.BackendPubSub:
		q, err = pubsubqueue.Dial(ctx, pubsubqueue.Config{
			ProjectID:      cfg.ProjectID,
			TopicID:        cfg.Name,
			SubscriptionID: cfg.Subscription,
			MaxOutstanding: w.cfg.Crawler.Workers,
		}, w.logger, w.opts.GoogleOptions...)
		w.logger.Info("using pubsub queue",
			zap.String("project", cfg.ProjectID),
			zap.String("topic", cfg.Name),
			zap.String("subscription", cfg.Subscription))
	case config.BackendKafka:
		q, err = kafkaqueue.New(kafkaqueue.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Name,
			GroupID: cfg.GroupID,
		}, w.logger)
		w.logger.Info("using kafka queue", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Name))
	default:
		q = memoryqueue.NewQueue(cfg.Depth)
		w.logger.Info("using in-memory queue", zap.Int("depth", cfg.Depth))
	}
	if err != nil {
		return err
	}
	w.app.queue = q
	w.distro = distributor.New(w.app.frontier, q, cfg.Backend, w.logger)
	return nil
}

func (w *wiring) setupRealtime(ctx context.Context) error {
	cfg := w.cfg.Realtime
	var (
		registry broadcast.ConnectionRegistry
		client   *goredis.Client
		err      error
	)
	if cfg.Registry == config.BackendRedis {
		client, err = w.redisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		registry = redisstore.NewConnectionRegistry(client, redisKeyPrefix)
	} else {
		registry = memorystorage.NewConnectionRegistry()
	}

	var poster broadcast.Poster
	switch {
	case w.cfg.RelayRealtime():
		// Sockets may live on any serve process; events travel over Redis.
		w.app.hub = realtime.NewHub(w.ids, w.clock, w.logger)
		w.app.relay = realtime.NewRedisRelay(client, cfg.RelayChannel, w.logger)
		poster = w.app.relay
		w.logger.Info("using redis-relayed websocket hub",
			zap.String("addr", cfg.RedisAddr),
			zap.String("channel", cfg.RelayChannel))
	case w.cfg.InProcessRealtime():
		w.app.hub = realtime.NewHub(w.ids, w.clock, w.logger)
		poster = w.app.hub
		w.logger.Info("using in-process websocket hub", zap.String("registry", cfg.Registry))
	default:
		cb, err := realtime.NewCallbackPoster(cfg.Endpoint, nil)
		if err != nil {
			return err
		}
		poster = cb
		w.logger.Info("using realtime callback endpoint",
			zap.String("endpoint", cfg.Endpoint),
			zap.String("registry", cfg.Registry))
	}
	w.app.gateway = broadcast.NewGateway(registry, poster, broadcast.Config{
		TTL:         cfg.ConnectionTTL,
		MaxParallel: cfg.MaxParallel,
		Environment: w.cfg.Environment,
	}, w.clock, w.logger)
	return nil
}

func (w *wiring) setupStats(ctx context.Context) error {
	cfg := w.cfg.Stats
	switch cfg.Backend {
	case config.BackendNone:
		w.logger.Info("crawl stats disabled")
	case config.BackendPostgres:
		pool, err := w.pool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		repo, err := pgstore.NewStatsStore(pool, "")
		if err != nil {
			return err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		w.stats = repo
		w.logger.Info("using postgres stats store")
	default:
		w.stats = memorystorage.NewStatsStore()
		w.logger.Info("using in-memory stats store")
	}
	return nil
}

func (w *wiring) setupProgress(ctx context.Context) error {
	reg := w.opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return err
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewLogSink(w.logger.Named("progress_log")),
	}
	if w.stats != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(w.stats, w.logger.Named("progress_store")))
	}
	w.app.progressHub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      w.logger.Named("progress_hub"),
	}, sinkList...)
	w.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return nil
}

func (w *wiring) setupArchive(ctx context.Context) error {
	cfg := w.cfg.Archive
	var targets []archive.Target

	var blobs crawler.BlobStore
	switch cfg.Backend {
	case config.BackendNone:
	case config.BackendLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: cfg.Dir})
		if err != nil {
			return err
		}
		blobs = local
	case config.BackendGCS:
		gcs, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.Bucket}, w.opts.GoogleOptions...)
		if err != nil {
			return err
		}
		w.app.onClose("gcs", func(context.Context) error { return gcs.Close() })
		blobs = gcs
	case config.BackendMongo:
		mongo, err := mongostore.Dial(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return err
		}
		w.app.onClose("mongo", mongo.Close)
		targets = append(targets, archive.Target{Name: config.BackendMongo, Archiver: mongo})
	case config.BackendPostgres:
		pool, err := w.pool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		pages, err := pgstore.NewPageArchive(pool, "")
		if err != nil {
			return err
		}
		if err := pages.EnsureSchema(ctx); err != nil {
			return err
		}
		targets = append(targets, archive.Target{Name: config.BackendPostgres, Archiver: pages})
	default:
		blobs = memorystorage.NewBlobStore()
	}
	if blobs != nil {
		blob, err := archive.NewBlob(blobs, sha256.NewShort(archiveHashLen), cfg.Prefix, w.logger)
		if err != nil {
			return err
		}
		targets = append(targets, archive.Target{Name: cfg.Backend, Archiver: blob})
	}

	if w.cfg.Graph.Neo4jURI != "" {
		recorder, err := graph.Dial(ctx, graph.Config{
			URI:      w.cfg.Graph.Neo4jURI,
			User:     w.cfg.Graph.User,
			Password: w.cfg.Graph.Password,
			Database: w.cfg.Graph.Database,
		}, w.logger)
		if err != nil {
			return err
		}
		w.app.onClose("neo4j", recorder.Close)
		targets = append(targets, archive.Target{Name: "neo4j", Archiver: recorder})
	}

	if len(targets) == 0 {
		w.logger.Info("page archiving disabled")
		return nil
	}
	multi := archive.NewMulti(w.logger, targets...)
	w.store = multi
	w.logger.Info("page archive initialized", zap.Int("targets", multi.Len()))
	return nil
}

func (w *wiring) setupFetcher(context.Context) error {
	fetcher := w.opts.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   w.cfg.Fetch.UserAgent,
			Timeout:     w.cfg.Fetch.Timeout,
			MaxBodySize: w.cfg.Fetch.MaxBodySize,
		})
		w.logger.Info("using colly fetcher", zap.String("user_agent", w.cfg.Fetch.UserAgent))
	}
	w.pages = page.NewWorker(fetcher, w.logger)
	return nil
}

func (w *wiring) setupCoordinator(context.Context) error {
	deps := coordinator.Deps{
		Frontier:    w.app.frontier,
		Pages:       w.pages,
		Distributor: w.distro,
		Notifier:    w.app.gateway,
		Emitter:     w.app.progressHub,
		Clock:       w.clock,
		IDs:         w.ids,

		TracerProvider: w.app.tracer,
	}
	if w.store != nil {
		deps.Archiver = w.store
	}
	cfg := coordinator.Config{
		MaxFanOut:    w.cfg.Crawler.MaxFanOut,
		FetchTimeout: w.cfg.Fetch.Timeout,
		TaskTimeout:  w.cfg.Crawler.TaskTimeout,
	}
	coord, err := coordinator.New(deps, cfg, w.logger)
	if err != nil {
		return err
	}
	w.app.coordinator = coord
	w.app.dispatch = dispatcher.New(w.app.queue, coord, w.cfg.Crawler.Workers, w.logger)
	w.logger.Info("coordinator config",
		zap.Int("max_fan_out", cfg.MaxFanOut),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.Duration("task_timeout", cfg.TaskTimeout))
	return nil
}

func (w *wiring) setupAPI() {
	deps := api.Deps{
		Frontier:    w.app.frontier,
		Queue:       w.app.queue,
		Tasks:       w.app.coordinator,
		Broadcaster: w.app.gateway,
		ReadyChecks: w.ready,
	}
	if w.stats != nil {
		deps.Stats = w.stats
	}
	if w.app.hub != nil {
		deps.Realtime = w.app.hub.Handler(w.app.gateway)
	}
	w.app.apiServer = api.NewServer(deps, w.cfg, w.logger)
}
