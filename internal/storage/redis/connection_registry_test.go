package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
)

func TestConnectionRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, c := newTestClient(t)
	reg := NewConnectionRegistry(c, "")
	now := time.Unix(1700000000, 0).UTC()

	added, err := reg.Add(ctx, broadcast.Connection{ID: "conn-2", EstablishedAt: now.Add(time.Second), ExpiresAt: now.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.True(t, added)
	added, err = reg.Add(ctx, broadcast.Connection{ID: "conn-1", EstablishedAt: now, Environment: "prod"})
	require.NoError(t, err)
	require.True(t, added)
	added, err = reg.Add(ctx, broadcast.Connection{ID: "conn-1", EstablishedAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.False(t, added)

	conns, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	require.Equal(t, "conn-1", conns[0].ID)
	require.Equal(t, "prod", conns[0].Environment)
	require.True(t, conns[1].ExpiresAt.Equal(now.Add(24*time.Hour)))
	require.True(t, mr.Exists("frontier:connections"))

	require.NoError(t, reg.Remove(ctx, "conn-1"))
	require.NoError(t, reg.Remove(ctx, "conn-1"))
	conns, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
}

func TestConnectionRegistryCorruptEntry(t *testing.T) {
	t.Parallel()

	mr, c := newTestClient(t)
	mr.HSet("frontier:connections", "bad", "{not json")
	reg := NewConnectionRegistry(c, "")
	_, err := reg.List(context.Background())
	require.Error(t, err)
}
