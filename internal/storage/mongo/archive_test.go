package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

func TestArchive(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	record := crawler.ArchiveRecord{
		PageURL:   "https://site.com/a",
		Domain:    "site.com",
		Timestamp: time.Unix(1700000000, 0),
		Result: crawler.PageResult{
			Links: crawler.Links{Internal: []string{"https://site.com/b"}},
			Text:  []string{"Hello"},
		},
	}

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := New(mt.Coll).Archive(context.Background(), record)
		require.NoError(mt, err)
	})

	mt.Run("insert error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		err := New(mt.Coll).Archive(context.Background(), record)
		require.Error(mt, err)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
	})

	mt.Run("missing url", func(mt *mtest.T) {
		err := New(mt.Coll).Archive(context.Background(), crawler.ArchiveRecord{})
		assert.Error(mt, err)
	})

	mt.Run("count", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}))
		n, err := New(mt.Coll).CountForDomain(context.Background(), "site.com")
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, n)
	})
}

func TestDialRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{})
	assert.Error(t, err)
}

func TestCloseWithoutClient(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New(nil).Close(context.Background()))
}
