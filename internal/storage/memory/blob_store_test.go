package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreKeepsPrivateCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"page_url":"https://site.test/a"}`)
	uri, err := store.PutObject(context.Background(), "scraped/site.test/a.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://scraped/site.test/a.json", uri)
	assert.Equal(t, "application/json", store.ContentType("scraped/site.test/a.json"))

	payload[0] = '['
	got, ok := store.Object("scraped/site.test/a.json")
	require.True(t, ok)
	assert.Equal(t, byte('{'), got[0])

	got[0] = 'X'
	again, _ := store.Object("scraped/site.test/a.json")
	assert.Equal(t, byte('{'), again[0])
}

func TestBlobStorePathsAndOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBlobStore()
	for _, p := range []string{"b.json", "a.json", "b.json"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewReader([]byte(p)))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.json", "b.json"}, store.Paths())

	_, ok := store.Object("missing.json")
	assert.False(t, ok)
}

func TestBlobStoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.PutObject(ctx, "x.json", "", bytes.NewReader(nil))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.Paths())
}
