package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
)

// DefaultRelayChannel is the Redis channel relayed events travel on.
const DefaultRelayChannel = "frontier:realtime"

// ErrNoRelaySubscribers reports that no serve process received a relayed event.
var ErrNoRelaySubscribers = errors.New("no relay subscribers")

type relayClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type relayEnvelope struct {
	ConnectionID string          `json:"connection_id"`
	Data         json.RawMessage `json:"data"`
}

// RedisRelay routes events to whichever process holds a websocket. Post
// publishes on a Redis channel; Run delivers received events to a local Hub.
type RedisRelay struct {
	client  relayClient
	channel string
	logger  *zap.Logger
}

// NewRedisRelay builds a relay on channel, defaulting to DefaultRelayChannel.
func NewRedisRelay(client relayClient, channel string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, logger: logger.Named("realtime_relay")}
}

// Post publishes data for connectionID. With no subscribers listening the
// event is lost, which is reported as a transient failure.
func (r *RedisRelay) Post(ctx context.Context, connectionID string, data []byte) error {
	msg, err := json.Marshal(relayEnvelope{ConnectionID: connectionID, Data: data})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	n, err := r.client.Publish(ctx, r.channel, msg).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	if n == 0 {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNoRelaySubscribers)
	}
	return nil
}

// Run subscribes to the relay channel and hands every event to local until
// ctx ends. Events for connections local does not hold are ignored.
func (r *RedisRelay) Run(ctx context.Context, local broadcast.Poster) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(ctx, local, msg.Payload)
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, local broadcast.Poster, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.ConnectionID == "" {
		r.logger.Warn("dropping malformed relay message", zap.Error(err))
		return
	}
	err := local.Post(ctx, env.ConnectionID, env.Data)
	switch {
	case err == nil:
	case errors.Is(err, broadcast.ErrNotHeld), errors.Is(err, broadcast.ErrGone):
		r.logger.Debug("relay target not deliverable here",
			zap.String("connection_id", env.ConnectionID), zap.Error(err))
	default:
		r.logger.Warn("relay delivery failed", zap.String("connection_id", env.ConnectionID), zap.Error(err))
	}
}
