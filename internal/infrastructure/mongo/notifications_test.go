package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/go-notify-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var at = time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)

func toDoc(t testing.TB, n domain.Notification) bson.D {
	t.Helper()
	raw, err := bson.Marshal(n)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func ns(mt *mtest.T) string {
	return mt.DB.Name() + "." + collectionNotifications
}

func TestNotificationRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get missing is not found", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		_, err := repo.Get(context.Background(), "n1", "u1")
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("get by id decodes", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		doc := toDoc(mt, domain.Notification{NotificationID: "n1", RecipientID: "u1", Title: "T", IsDeleted: true, CreatedAt: at})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, doc))

		n, err := repo.GetByID(context.Background(), "n1")
		require.NoError(mt, err)
		assert.Equal(mt, "T", n.Title)
		assert.True(mt, n.IsDeleted)
	})

	mt.Run("mark read returns updated document", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		readAt := at
		doc := toDoc(mt, domain.Notification{NotificationID: "n1", RecipientID: "u1", IsRead: true, ReadAt: &readAt})
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: doc}})

		n, err := repo.MarkRead(context.Background(), "n1", "u1", at)
		require.NoError(mt, err)
		assert.True(mt, n.IsRead)
		require.NotNil(mt, n.ReadAt)
	})

	mt.Run("mark read on read notification is already in state", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		readAt := at
		doc := toDoc(mt, domain.Notification{NotificationID: "n1", RecipientID: "u1", IsRead: true, ReadAt: &readAt})
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}},
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, doc),
		)

		_, err := repo.MarkRead(context.Background(), "n1", "u1", at)
		assert.ErrorIs(mt, err, domain.ErrAlreadyInState)
	})

	mt.Run("mark read on missing notification is not found", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}},
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)

		_, err := repo.MarkRead(context.Background(), "n1", "u1", at)
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("mark many read reports modified count", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 3},
			bson.E{Key: "nModified", Value: 2},
		))

		count, err := repo.MarkManyRead(context.Background(), []string{"a", "b", "c"}, "u1", at)
		require.NoError(mt, err)
		assert.Equal(mt, 2, count)
	})

	mt.Run("failed update many is indeterminate", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad update",
		}))

		_, err := repo.SoftDeleteAll(context.Background(), "u1", at)
		assert.ErrorIs(mt, err, domain.ErrIndeterminate)
	})

	mt.Run("soft delete missing is not found", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		_, err := repo.SoftDelete(context.Background(), "n1", "u1", at)
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("list counts then finds", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: 41}}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
				toDoc(mt, domain.Notification{NotificationID: "a", RecipientID: "u1"}),
				toDoc(mt, domain.Notification{NotificationID: "b", RecipientID: "u1"}),
			),
		)

		got, total, err := repo.List(context.Background(), "u1", domain.ListOptions{Page: 3})
		require.NoError(mt, err)
		assert.Equal(mt, 41, total)
		assert.Len(mt, got, 2)
	})

	mt.Run("stats from facet", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		facet := bson.D{
			{Key: "total", Value: bson.A{bson.D{{Key: "n", Value: 5}}}},
			{Key: "unread", Value: bson.A{bson.D{{Key: "n", Value: 2}}}},
			{Key: "byType", Value: bson.A{
				bson.D{{Key: "_id", Value: "info"}, {Key: "count", Value: 1}},
				bson.D{{Key: "_id", Value: "error"}, {Key: "count", Value: 4}},
			}},
			{Key: "byPriority", Value: bson.A{
				bson.D{{Key: "_id", Value: "medium"}, {Key: "count", Value: 5}},
			}},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, facet))

		st, err := repo.Stats(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, 5, st.Total)
		assert.Equal(mt, 2, st.Unread)
		assert.Equal(mt, 3, st.Read)
		require.Len(mt, st.ByCategory, 2)
		assert.Equal(mt, "error", st.ByCategory[0].Key)
		assert.Contains(mt, st.ByPriority, domain.CountByKey{Key: string(domain.PriorityMedium), Count: 5})
	})

	mt.Run("stats for empty inbox", func(mt *mtest.T) {
		repo := NewNotificationRepo(mt.DB)
		facet := bson.D{
			{Key: "total", Value: bson.A{}},
			{Key: "unread", Value: bson.A{}},
			{Key: "byType", Value: bson.A{}},
			{Key: "byPriority", Value: bson.A{}},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, facet))

		st, err := repo.Stats(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, 0, st.Total)
		assert.Empty(mt, st.ByCategory)
	})
}

func TestLiteralRegex_EscapesMeta(t *testing.T) {
	re := literalRegex("a+b (c)")
	assert.Equal(t, `a\+b \(c\)`, re["$regex"])
	assert.Equal(t, "i", re["$options"])
}
