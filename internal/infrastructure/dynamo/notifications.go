package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-hub/internal/domain"
)

// maxTransactItems is DynamoDB's per-transaction item limit.
const maxTransactItems = 100

// notificationItem adds the TTL attribute DynamoDB uses to expire records.
type notificationItem struct {
	domain.Notification
	ExpiresAtEpoch *int64 `dynamodbav:"expires_at_epoch,omitempty"`
}

func toItem(n *domain.Notification) (map[string]types.AttributeValue, error) {
	it := notificationItem{Notification: *n}
	if n.ExpiresAt != nil {
		epoch := n.ExpiresAt.Unix()
		it.ExpiresAtEpoch = &epoch
	}
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (*domain.Notification, error) {
	var it notificationItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &it.Notification, nil
}

// NotificationRepo stores notifications in one table keyed by
// notification_id, with a recipient_id/created_at GSI for per-user reads.
// Text search, expiry and aggregation run in process over the user's items.
type NotificationRepo struct {
	client    API
	tableName string
}

func NewNotificationRepo(client API, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	item, err := toItem(n)
	if err != nil {
		return storeErr("put", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldNotificationID},
	})
	if err != nil {
		return storeErr("put", err)
	}
	return nil
}

// CreateMany writes every record in a single transaction.
func (r *NotificationRepo) CreateMany(ctx context.Context, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if len(ns) > maxTransactItems {
		return fmt.Errorf("bulk insert of %d exceeds %d: %w", len(ns), maxTransactItems, domain.ErrBadRequest)
	}
	items := make([]types.TransactWriteItem, 0, len(ns))
	for i := range ns {
		item, err := toItem(&ns[i])
		if err != nil {
			return storeErr("transact write", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": fieldNotificationID},
			},
		})
	}
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return storeErr("transact write", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldNotificationID, notificationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	n, err := fromItem(out.Item)
	if err != nil {
		return nil, storeErr("get", err)
	}
	return n, nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	n, err := r.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.IsDeleted || n.RecipientID != recipientID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return n, nil
}

// queryRecipient pages through the recipient index returning active items
// that match every equality filter.
func (r *NotificationRepo) queryRecipient(ctx context.Context, recipientID string, filters map[string]interface{}) ([]domain.Notification, error) {
	filters[fieldIsDeleted] = false
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := map[string]string{"#r": fieldRecipientID}
	values := map[string]types.AttributeValue{":r": &types.AttributeValueMemberS{Value: recipientID}}
	parts := make([]string, 0, len(keys))
	for i, k := range keys {
		nk, vk := fmt.Sprintf("#q%d", i), fmt.Sprintf(":q%d", i)
		av, err := attributevalue.Marshal(filters[k])
		if err != nil {
			return nil, storeErr("query", err)
		}
		names[nk] = k
		values[vk] = av
		parts = append(parts, nk+" = "+vk)
	}

	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(recipientIndex),
		KeyConditionExpression:    aws.String("#r = :r"),
		FilterExpression:          aws.String(strings.Join(parts, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	})
	out := []domain.Notification{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr("query", err)
		}
		for _, item := range page.Items {
			n, err := fromItem(item)
			if err != nil {
				return nil, storeErr("query", err)
			}
			out = append(out, *n)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *NotificationRepo) List(ctx context.Context, recipientID string, opts domain.ListOptions) ([]domain.Notification, int, error) {
	opts = opts.Normalize()
	filters := map[string]interface{}{}
	if opts.IsRead != nil {
		filters[fieldIsRead] = *opts.IsRead
	}
	if opts.Category != nil {
		filters[fieldCategory] = string(*opts.Category)
	}
	if opts.Priority != nil {
		filters[fieldPriority] = string(*opts.Priority)
	}
	all, err := r.queryRecipient(ctx, recipientID, filters)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	start := (opts.Page - 1) * opts.Limit
	if start >= total {
		return []domain.Notification{}, total, nil
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *NotificationRepo) ListUnread(ctx context.Context, recipientID string, now time.Time) ([]domain.Notification, error) {
	all, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{fieldIsRead: false})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, n := range all {
		// TTL deletion lags expiry, so expired items can still be returned.
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *NotificationRepo) ListRead(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	out, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{fieldIsRead: true})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return readAt(out[i]).After(readAt(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) Search(ctx context.Context, recipientID string, c domain.SearchCriteria) ([]domain.Notification, error) {
	all, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for i := range all {
		if c.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *NotificationRepo) Stats(ctx context.Context, recipientID string) (domain.Stats, error) {
	all, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{})
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.StatsOf(all), nil
}

// MarkRead applies the unread -> read transition with a conditional update.
// On a failed condition the old item tells NotFound from AlreadyInState.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	n, err := r.conditionalUpdate(ctx, notificationID,
		map[string]interface{}{fieldIsRead: true, fieldReadAt: at, fieldUpdatedAt: at},
		map[string]interface{}{fieldNotificationID: nil, fieldRecipientID: recipientID, fieldIsDeleted: false, fieldIsRead: false},
	)
	if err == nil {
		return n, nil
	}
	if old, ok := conditionOld(err); ok {
		if old != nil && !old.IsDeleted && old.RecipientID == recipientID && old.IsRead {
			return nil, fmt.Errorf("notification %s already read: %w", notificationID, domain.ErrAlreadyInState)
		}
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return nil, err
}

func (r *NotificationRepo) MarkManyRead(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	return r.updateEach(ctx, notificationIDs,
		map[string]interface{}{fieldIsRead: true, fieldReadAt: at, fieldUpdatedAt: at},
		map[string]interface{}{fieldNotificationID: nil, fieldRecipientID: recipientID, fieldIsDeleted: false, fieldIsRead: false},
	)
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	unread, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{fieldIsRead: false})
	if err != nil {
		return 0, err
	}
	return r.MarkManyRead(ctx, ids(unread), recipientID, at)
}

func (r *NotificationRepo) SoftDelete(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	n, err := r.conditionalUpdate(ctx, notificationID,
		map[string]interface{}{fieldIsDeleted: true, fieldUpdatedAt: at},
		map[string]interface{}{fieldNotificationID: nil, fieldRecipientID: recipientID, fieldIsDeleted: false},
	)
	if err == nil {
		return n, nil
	}
	if _, ok := conditionOld(err); ok {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return nil, err
}

func (r *NotificationRepo) SoftDeleteMany(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	return r.updateEach(ctx, notificationIDs,
		map[string]interface{}{fieldIsDeleted: true, fieldUpdatedAt: at},
		map[string]interface{}{fieldNotificationID: nil, fieldRecipientID: recipientID, fieldIsDeleted: false},
	)
}

func (r *NotificationRepo) SoftDeleteAll(ctx context.Context, recipientID string, at time.Time) (int, error) {
	active, err := r.queryRecipient(ctx, recipientID, map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	return r.SoftDeleteMany(ctx, ids(active), recipientID, at)
}

// SoftDeleteReadBefore scans the whole table. It runs from the periodic
// cleanup job only.
func (r *NotificationRepo) SoftDeleteReadBefore(ctx context.Context, cutoff, at time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#read = :t AND #del = :f"),
		ExpressionAttributeNames: map[string]string{"#read": fieldIsRead, "#del": fieldIsDeleted},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	var stale []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, storeErr("scan", err)
		}
		for _, item := range page.Items {
			n, err := fromItem(item)
			if err != nil {
				return 0, storeErr("scan", err)
			}
			if n.ReadAt != nil && n.ReadAt.Before(cutoff) {
				stale = append(stale, n.NotificationID)
			}
		}
	}
	return r.updateEach(ctx, stale,
		map[string]interface{}{fieldIsDeleted: true, fieldUpdatedAt: at},
		map[string]interface{}{fieldNotificationID: nil, fieldIsDeleted: false, fieldIsRead: true},
	)
}

// updateEach applies one conditional update per id. Items whose condition
// fails are skipped. DynamoDB has no multi-item conditional update outside
// transactions, so a driver error after some items changed leaves the
// count unknown and is reported as domain.ErrIndeterminate.
func (r *NotificationRepo) updateEach(ctx context.Context, notificationIDs []string, set, cond map[string]interface{}) (int, error) {
	count := 0
	for _, nid := range notificationIDs {
		_, err := r.conditionalUpdate(ctx, nid, set, cond)
		if err == nil {
			count++
			continue
		}
		if _, ok := conditionOld(err); ok {
			continue
		}
		if count > 0 {
			return count, fmt.Errorf("%d of %d updated before failure: %w: %w", count, len(notificationIDs), domain.ErrIndeterminate, err)
		}
		return 0, err
	}
	return count, nil
}

// conditionFailed carries the pre-image returned with a failed condition.
type conditionFailed struct {
	old *domain.Notification
}

func (e *conditionFailed) Error() string { return "condition failed" }

func conditionOld(err error) (*domain.Notification, bool) {
	cf, ok := err.(*conditionFailed)
	if !ok {
		return nil, false
	}
	return cf.old, true
}

func (r *NotificationRepo) conditionalUpdate(ctx context.Context, notificationID string, set, cond map[string]interface{}) (*domain.Notification, error) {
	ue, err := buildUpdateExpr(set)
	if err != nil {
		return nil, storeErr("update", err)
	}
	if err := ue.where(cond); err != nil {
		return nil, storeErr("update", err)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey(fieldNotificationID, notificationID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(ue.Cond),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if ccf, ok := isConditionFailed(err); ok {
			var old *domain.Notification
			if len(ccf.Item) > 0 {
				old, _ = fromItem(ccf.Item)
			}
			return nil, &conditionFailed{old: old}
		}
		return nil, storeErr("update", err)
	}
	n, err := fromItem(out.Attributes)
	if err != nil {
		return nil, storeErr("update", err)
	}
	return n, nil
}

func ids(ns []domain.Notification) []string {
	out := make([]string, len(ns))
	for i := range ns {
		out[i] = ns[i].NotificationID
	}
	return out
}

func readAt(n domain.Notification) time.Time {
	if n.ReadAt == nil {
		return time.Time{}
	}
	return *n.ReadAt
}

func sortByCreatedDesc(ns []domain.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].NotificationID > ns[j].NotificationID
	})
}
