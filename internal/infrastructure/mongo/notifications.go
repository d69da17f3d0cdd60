package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-notify-hub/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepo stores notifications in a single collection. Field names
// follow the bson tags on domain.Notification.
type NotificationRepo struct {
	coll *mongo.Collection
}

func NewNotificationRepo(db *mongo.Database) *NotificationRepo {
	return &NotificationRepo{coll: db.Collection(collectionNotifications)}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("mongo %s: %w: %w", op, domain.ErrStoreFailure, err)
}

func notFound(notificationID string) error {
	return fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
}

func active(recipientID string) bson.M {
	return bson.M{"recipient": recipientID, "isDeleted": false}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return storeErr("insert", err)
	}
	return nil
}

// CreateMany inserts in order and removes whatever was written if the insert
// fails, so callers see all or nothing. A failed rollback is indeterminate.
func (r *NotificationRepo) CreateMany(ctx context.Context, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	docs := make([]interface{}, len(ns))
	ids := make([]string, len(ns))
	for i := range ns {
		docs[i] = ns[i]
		ids[i] = ns[i].NotificationID
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if _, derr := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); derr != nil {
		return fmt.Errorf("mongo insert many rollback: %w: %w", domain.ErrIndeterminate, errors.Join(err, derr))
	}
	return storeErr("insert many", err)
}

func (r *NotificationRepo) findOne(ctx context.Context, filter bson.M, notificationID string) (*domain.Notification, error) {
	var n domain.Notification
	if err := r.coll.FindOne(ctx, filter).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(notificationID)
		}
		return nil, storeErr("find one", err)
	}
	return &n, nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	filter := active(recipientID)
	filter["_id"] = notificationID
	return r.findOne(ctx, filter, notificationID)
}

func (r *NotificationRepo) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	return r.findOne(ctx, bson.M{"_id": notificationID}, notificationID)
}

func (r *NotificationRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Notification, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("find", err)
	}
	out := []domain.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode", err)
	}
	return out, nil
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (r *NotificationRepo) List(ctx context.Context, recipientID string, opts domain.ListOptions) ([]domain.Notification, int, error) {
	opts = opts.Normalize()
	filter := active(recipientID)
	if opts.IsRead != nil {
		filter["isRead"] = *opts.IsRead
	}
	if opts.Category != nil {
		filter["type"] = *opts.Category
	}
	if opts.Priority != nil {
		filter["priority"] = *opts.Priority
	}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count", err)
	}
	ns, err := r.find(ctx, filter, options.Find().
		SetSort(newestFirst).
		SetSkip(int64((opts.Page-1)*opts.Limit)).
		SetLimit(int64(opts.Limit)))
	if err != nil {
		return nil, 0, err
	}
	return ns, int(total), nil
}

func (r *NotificationRepo) ListUnread(ctx context.Context, recipientID string, now time.Time) ([]domain.Notification, error) {
	filter := active(recipientID)
	filter["isRead"] = false
	filter["$or"] = bson.A{
		bson.M{"expiresAt": bson.M{"$exists": false}},
		bson.M{"expiresAt": nil},
		bson.M{"expiresAt": bson.M{"$gt": now}},
	}
	return r.find(ctx, filter, options.Find().SetSort(newestFirst))
}

func (r *NotificationRepo) ListRead(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	filter := active(recipientID)
	filter["isRead"] = true
	opts := options.Find().SetSort(bson.D{{Key: "readAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *NotificationRepo) Search(ctx context.Context, recipientID string, c domain.SearchCriteria) ([]domain.Notification, error) {
	filter := active(recipientID)
	if c.Query != "" {
		re := literalRegex(c.Query)
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"message": re}}
	}
	if c.Category != nil {
		filter["type"] = *c.Category
	}
	if c.Priority != nil {
		filter["priority"] = *c.Priority
	}
	if c.IsRead != nil {
		filter["isRead"] = *c.IsRead
	}
	if c.StartDate != nil || c.EndDate != nil {
		rng := bson.M{}
		if c.StartDate != nil {
			rng["$gte"] = *c.StartDate
		}
		if c.EndDate != nil {
			rng["$lte"] = *c.EndDate
		}
		filter["createdAt"] = rng
	}
	return r.find(ctx, filter, options.Find().SetSort(newestFirst))
}

// literalRegex matches the query literally and case-insensitively.
func literalRegex(q string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	filter := active(recipientID)
	filter["_id"] = notificationID
	filter["isRead"] = false
	var n domain.Notification
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"isRead": true, "readAt": at, "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err == nil {
		return &n, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storeErr("mark read", err)
	}
	if _, gerr := r.Get(ctx, notificationID, recipientID); gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("notification %s already read: %w", notificationID, domain.ErrAlreadyInState)
}

func (r *NotificationRepo) SoftDelete(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	filter := active(recipientID)
	filter["_id"] = notificationID
	var n domain.Notification
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"isDeleted": true, "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(notificationID)
		}
		return nil, storeErr("soft delete", err)
	}
	return &n, nil
}

// updateMany reports the modified count. A failed multi-document update may
// have applied to some documents, so any error is indeterminate.
func (r *NotificationRepo) updateMany(ctx context.Context, filter, set bson.M) (int, error) {
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("mongo update many: %w: %w", domain.ErrIndeterminate, err)
	}
	return int(res.ModifiedCount), nil
}

func (r *NotificationRepo) MarkManyRead(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	filter := active(recipientID)
	filter["_id"] = bson.M{"$in": notificationIDs}
	filter["isRead"] = false
	return r.updateMany(ctx, filter, bson.M{"isRead": true, "readAt": at, "updatedAt": at})
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	filter := active(recipientID)
	filter["isRead"] = false
	return r.updateMany(ctx, filter, bson.M{"isRead": true, "readAt": at, "updatedAt": at})
}

func (r *NotificationRepo) SoftDeleteMany(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	filter := active(recipientID)
	filter["_id"] = bson.M{"$in": notificationIDs}
	return r.updateMany(ctx, filter, bson.M{"isDeleted": true, "updatedAt": at})
}

func (r *NotificationRepo) SoftDeleteAll(ctx context.Context, recipientID string, at time.Time) (int, error) {
	return r.updateMany(ctx, active(recipientID), bson.M{"isDeleted": true, "updatedAt": at})
}

func (r *NotificationRepo) SoftDeleteReadBefore(ctx context.Context, cutoff, at time.Time) (int, error) {
	return r.updateMany(ctx,
		bson.M{"isRead": true, "isDeleted": false, "readAt": bson.M{"$lt": cutoff}},
		bson.M{"isDeleted": true, "updatedAt": at},
	)
}

type countRow struct {
	Key   string `bson:"_id"`
	Count int    `bson:"count"`
}

type countOnly struct {
	N int `bson:"n"`
}

type statsFacet struct {
	Total      []countOnly `bson:"total"`
	Unread     []countOnly `bson:"unread"`
	ByCategory []countRow  `bson:"byType"`
	ByPriority []countRow  `bson:"byPriority"`
}

// Stats runs one aggregation with a facet per figure.
func (r *NotificationRepo) Stats(ctx context.Context, recipientID string) (domain.Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: active(recipientID)}},
		{{Key: "$facet", Value: bson.M{
			"total":      bson.A{bson.M{"$count": "n"}},
			"unread":     bson.A{bson.M{"$match": bson.M{"isRead": false}}, bson.M{"$count": "n"}},
			"byType":     bson.A{bson.M{"$group": bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}},
			"byPriority": bson.A{bson.M{"$group": bson.M{"_id": "$priority", "count": bson.M{"$sum": 1}}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.Stats{}, storeErr("aggregate", err)
	}
	var rows []statsFacet
	if err := cur.All(ctx, &rows); err != nil {
		return domain.Stats{}, storeErr("decode stats", err)
	}
	if len(rows) == 0 {
		return domain.NewStats(0, 0, nil, nil), nil
	}
	f := rows[0]
	total, unread := 0, 0
	if len(f.Total) > 0 {
		total = f.Total[0].N
	}
	if len(f.Unread) > 0 {
		unread = f.Unread[0].N
	}
	return domain.NewStats(total, unread, toMap(f.ByCategory), toMap(f.ByPriority)), nil
}

func toMap(rows []countRow) map[string]int {
	m := make(map[string]int, len(rows))
	for _, r := range rows {
		m[r.Key] = r.Count
	}
	return m
}
