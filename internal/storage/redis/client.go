// Package redisstore provides Redis-backed frontier and connection stores.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "frontier"

// client is the subset of *redis.Client the stores use.
type client interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	HExists(ctx context.Context, key, field string) *redis.BoolCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// NewClient opens a client for addr and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return c, nil
}

func keyPrefix(prefix string) string {
	if prefix == "" {
		return defaultPrefix
	}
	return prefix
}
