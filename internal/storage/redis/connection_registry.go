package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
)

// ConnectionRegistry stores realtime subscribers in one Redis hash keyed by
// connection ID. Expiry is enforced by the gateway, which prunes expired
// entries on broadcast.
type ConnectionRegistry struct {
	client client
	key    string
}

// NewConnectionRegistry wraps a Redis client.
func NewConnectionRegistry(c client, prefix string) *ConnectionRegistry {
	return &ConnectionRegistry{client: c, key: keyPrefix(prefix) + ":connections"}
}

// Add writes conn with HSETNX so an existing registration is kept.
func (r *ConnectionRegistry) Add(ctx context.Context, conn broadcast.Connection) (bool, error) {
	payload, err := json.Marshal(conn)
	if err != nil {
		return false, fmt.Errorf("marshal connection: %w", err)
	}
	added, err := r.client.HSetNX(ctx, r.key, conn.ID, string(payload)).Result()
	if err != nil {
		return false, fmt.Errorf("add connection %s: %w", conn.ID, err)
	}
	return added, nil
}

// Remove deletes the connection if present.
func (r *ConnectionRegistry) Remove(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("remove connection %s: %w", id, err)
	}
	return nil
}

// List returns all registered connections ordered by establishment time.
func (r *ConnectionRegistry) List(ctx context.Context) ([]broadcast.Connection, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]broadcast.Connection, 0, len(fields))
	for id, encoded := range fields {
		var conn broadcast.Connection
		if err := json.Unmarshal([]byte(encoded), &conn); err != nil {
			return nil, fmt.Errorf("decode connection %s: %w", id, err)
		}
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstablishedAt.Equal(out[j].EstablishedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EstablishedAt.Before(out[j].EstablishedAt)
	})
	return out, nil
}
