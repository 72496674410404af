package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultMaxParallel = 16
)

// Config tunes the gateway.
type Config struct {
	// TTL bounds how long a registration lives. Defaults to 24h.
	TTL time.Duration
	// MaxParallel bounds concurrent deliveries per broadcast. Defaults to 16.
	MaxParallel int
	// Environment tags new registrations.
	Environment string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
	return c
}

// Gateway is the only writer of the connection registry.
type Gateway struct {
	registry ConnectionRegistry
	poster   Poster
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// NewGateway wires a registry and a transport. A nil clock uses wall time.
func NewGateway(registry ConnectionRegistry, poster Poster, cfg Config, clock crawler.Clock, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Gateway{
		registry: registry,
		poster:   poster,
		cfg:      cfg.withDefaults(),
		now:      now,
		logger:   logger.Named("broadcast"),
	}
}

// Register records a subscriber. Registering an existing ID keeps the
// original record.
func (g *Gateway) Register(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("connection id is required")
	}
	now := g.now().UTC()
	added, err := g.registry.Add(ctx, Connection{
		ID:            id,
		EstablishedAt: now,
		ExpiresAt:     now.Add(g.cfg.TTL),
		Environment:   g.cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("register connection %s: %w", id, err)
	}
	if added {
		g.logger.Info("connection established", zap.String("connection_id", id))
	}
	return nil
}

// Unregister removes a subscriber; unknown IDs are ignored.
func (g *Gateway) Unregister(ctx context.Context, id string) error {
	if err := g.registry.Remove(ctx, id); err != nil {
		return fmt.Errorf("unregister connection %s: %w", id, err)
	}
	g.logger.Info("connection terminated", zap.String("connection_id", id))
	return nil
}

// Connections lists live registrations.
func (g *Gateway) Connections(ctx context.Context) ([]Connection, error) {
	conns, err := g.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	now := g.now()
	live := conns[:0]
	for _, c := range conns {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

// Broadcast delivers evt to every live connection concurrently. Only a
// failure to read the registry is returned as an error.
func (g *Gateway) Broadcast(ctx context.Context, evt Event) (Result, error) {
	if evt.Domain == "" {
		return Result{}, ErrMissingDomain
	}
	if evt.Type == "" {
		evt.Type = EventSitemapUpdate
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = g.now()
	}
	conns, err := g.registry.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list connections: %w", err)
	}
	if len(conns) == 0 {
		g.logger.Debug("no active connections to broadcast to", zap.String("domain", evt.Domain))
		return Result{}, nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return Result{}, fmt.Errorf("encode event: %w", err)
	}

	var (
		mu    sync.Mutex
		res   Result
		stale []string
	)
	now := g.now()
	grp := new(errgroup.Group)
	grp.SetLimit(g.cfg.MaxParallel)
	for _, conn := range conns {
		if conn.Expired(now) {
			mu.Lock()
			stale = append(stale, conn.ID)
			mu.Unlock()
			continue
		}
		grp.Go(func() error {
			outcome := g.deliver(ctx, conn.ID, data)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeDelivered:
				res.Delivered++
			case outcomeStale:
				stale = append(stale, conn.ID)
			case outcomeSkipped:
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = grp.Wait()

	for _, id := range stale {
		if err := g.registry.Remove(ctx, id); err != nil {
			g.logger.Error("failed to remove stale connection", zap.String("connection_id", id), zap.Error(err))
			continue
		}
		res.StaleRemoved++
	}
	g.logger.Info("broadcast complete",
		zap.String("type", evt.Type),
		zap.String("domain", evt.Domain),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
		zap.Int("stale_removed", res.StaleRemoved),
	)
	return res, nil
}

// NotifySitemapUpdate broadcasts a sitemap_update for domain. It satisfies
// crawler.Notifier.
func (g *Gateway) NotifySitemapUpdate(ctx context.Context, domain string, linkCount int) error {
	_, err := g.Broadcast(ctx, Event{
		Type:    EventSitemapUpdate,
		Domain:  domain,
		Payload: map[string]any{"link_count": linkCount},
	})
	return err
}

type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeStale
	outcomeSkipped
	outcomeFailed
)

func (g *Gateway) deliver(ctx context.Context, id string, data []byte) (outcome deliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("delivery panicked", zap.String("connection_id", id), zap.Any("panic", r))
			outcome = outcomeFailed
		}
		metrics.ObserveDelivery(outcome.String())
	}()
	err := g.poster.Post(ctx, id, data)
	switch {
	case err == nil:
		return outcomeDelivered
	case errors.Is(err, ErrGone):
		g.logger.Info("stale connection", zap.String("connection_id", id))
		return outcomeStale
	case errors.Is(err, ErrNotHeld):
		g.logger.Debug("connection held elsewhere", zap.String("connection_id", id))
		return outcomeSkipped
	default:
		g.logger.Warn("delivery failed", zap.String("connection_id", id), zap.Error(err))
		return outcomeFailed
	}
}

func (o deliveryOutcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeStale:
		return "stale"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}
