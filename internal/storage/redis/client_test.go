package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestClient runs the stores against an in-process Redis that executes the
// Lua scripts for real.
func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

// failingClient fails every command with err.
type failingClient struct {
	err    error
	closed bool
}

func (f *failingClient) Eval(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, f.err)
}

func (f *failingClient) HExists(context.Context, string, string) *redis.BoolCmd {
	return redis.NewBoolResult(false, f.err)
}

func (f *failingClient) HGetAll(context.Context, string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(nil, f.err)
}

func (f *failingClient) HSetNX(context.Context, string, string, any) *redis.BoolCmd {
	return redis.NewBoolResult(false, f.err)
}

func (f *failingClient) HDel(context.Context, string, ...string) *redis.IntCmd {
	return redis.NewIntResult(0, f.err)
}

func (f *failingClient) Get(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", f.err)
}

func (f *failingClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("", f.err)
}

func (f *failingClient) Close() error {
	f.closed = true
	return nil
}
