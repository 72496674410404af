package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

func TestNoOpQueue(t *testing.T) {
	t.Parallel()

	var q Queue = NoOpQueue{}
	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{PageURL: "https://site.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, q.Close())
}
