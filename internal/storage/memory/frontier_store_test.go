package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

func TestFrontierStoreConcurrentClaimIsExclusive(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()
	const workers = 64

	results := make(chan crawler.ClaimResult, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := store.TryClaim(ctx, "https://site.com/a", "site.com")
			if err != nil {
				t.Errorf("TryClaim() error = %v", err)
				return
			}
			results <- res
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	acquired := 0
	for res := range results {
		if res.Acquired() {
			acquired++
			continue
		}
		assert.Equal(t, crawler.ClaimAlreadyClaimed, res)
	}
	assert.Equal(t, 1, acquired)
}

func TestFrontierStoreConcurrentClaimsMergeWithinDomain(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()
	const urls = 50

	var wg sync.WaitGroup
	for i := 0; i < urls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.TryClaim(ctx, fmt.Sprintf("https://site.com/p%d", i), "site.com")
			assert.NoError(t, err)
			assert.Equal(t, crawler.ClaimAcquired, res)
		}(i)
	}
	wg.Wait()

	snap, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.Len(t, snap.URLStates, urls)
}

func TestFrontierStoreScenario(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()

	first, err := store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	second, err := store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	assert.Equal(t, crawler.ClaimAcquired, first)
	assert.Equal(t, crawler.ClaimAlreadyClaimed, second)

	known, err := store.IsKnown(ctx, "https://site.com/b", "site.com")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, store.Complete(ctx, "https://site.com/a", "site.com", []string{"https://site.com/b"}))

	known, err = store.IsKnown(ctx, "https://site.com/b", "site.com")
	require.NoError(t, err)
	assert.False(t, known, "completing a page does not claim its links")

	res, err := store.TryClaim(ctx, "https://site.com/b", "site.com")
	require.NoError(t, err)
	assert.Equal(t, crawler.ClaimAcquired, res)

	known, err = store.IsKnown(ctx, "https://site.com/b", "site.com")
	require.NoError(t, err)
	assert.True(t, known)

	res, err = store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	assert.Equal(t, crawler.ClaimAlreadyCompleted, res)
}

func TestFrontierStoreDistinguishesClaimedFromEmptyCompletion(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()

	_, err := store.TryClaim(ctx, "https://site.com/leaf", "site.com")
	require.NoError(t, err)
	_, err = store.TryClaim(ctx, "https://site.com/pending", "site.com")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "https://site.com/leaf", "site.com", nil))

	snap, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.Equal(t, crawler.StatusCompleted, snap.URLStates["https://site.com/leaf"].Status)
	assert.Equal(t, crawler.StatusClaimed, snap.URLStates["https://site.com/pending"].Status)
	assert.Equal(t, 1, snap.Completed())
}

func TestFrontierStoreCompleteErrors(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()

	err := store.Complete(ctx, "https://gone.com/a", "gone.com", nil)
	assert.True(t, errors.Is(err, crawler.ErrDomainNotFound))

	_, err = store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "https://site.com/a", "site.com", []string{"https://site.com/b"}))
	err = store.Complete(ctx, "https://site.com/a", "site.com", nil)
	assert.True(t, errors.Is(err, crawler.ErrAlreadyCompleted))

	snap, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.com/b"}, snap.URLStates["https://site.com/a"].Links)
}

func TestFrontierStoreLastUpdatedStrictlyIncreases(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(frozenClock{t: time.Unix(1700000000, 0)})
	ctx := context.Background()

	_, err := store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	first, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, "https://site.com/a", "site.com", nil))
	second, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.True(t, second.LastUpdated.After(first.LastUpdated))

	// A rejected claim is not a mutation.
	_, err = store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	third, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.Equal(t, second.LastUpdated, third.LastUpdated)
}

func TestFrontierStoreSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	store := NewFrontierStore(nil)
	ctx := context.Background()
	_, err := store.Snapshot(ctx, "site.com")
	assert.True(t, errors.Is(err, crawler.ErrDomainNotFound))

	_, err = store.TryClaim(ctx, "https://site.com/a", "site.com")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "https://site.com/a", "site.com", []string{"https://site.com/b"}))

	snap, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	snap.URLStates["https://site.com/a"].Links[0] = "mutated"
	delete(snap.URLStates, "https://site.com/a")

	again, err := store.Snapshot(ctx, "site.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.com/b"}, again.URLStates["https://site.com/a"].Links)
}
