package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/pkg/id"
	"github.com/go-notify-hub/internal/pkg/validate"
)

const (
	defaultCleanupDays = 30
	// sideEffectTimeout bounds the pushes and relay that follow a persisted write.
	sideEffectTimeout = 10 * time.Second
)

// Service is the notification lifecycle manager. Every mutation persists
// first, then pushes the update to the recipient's connections, then pushes
// recomputed stats.
type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	CreateBulk(ctx context.Context, req domain.BulkNotificationRequest) ([]domain.Notification, error)
	Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	// Audit reads a notification by id regardless of recipient or deletion.
	Audit(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.NotificationPage, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	ListRead(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	Search(ctx context.Context, userID string, c domain.SearchCriteria) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	MarkManyRead(ctx context.Context, notificationIDs []string, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	DeleteMany(ctx context.Context, notificationIDs []string, userID string) (int, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
	CleanupExpired(ctx context.Context, maxAgeDays int) (int, error)
	ComputeStats(ctx context.Context, userID string) (*domain.Stats, error)
	PushStats(ctx context.Context, userID string) error
}

type eventRouter interface {
	SendToUser(userID, event string, payload interface{}) int
}

type presence interface {
	IsConnected(userID string) bool
}

// offlineRelay forwards notifications for recipients with no live connection.
type offlineRelay interface {
	PublishNotification(ctx context.Context, n *domain.Notification) error
}

type service struct {
	store    Store
	router   eventRouter
	presence presence
	relay    offlineRelay
	now      func() time.Time
}

// ServiceDeps wires the manager. Presence and Relay are optional; without
// them no offline relay happens.
type ServiceDeps struct {
	Store    Store
	Router   eventRouter
	Presence presence
	Relay    offlineRelay
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:    deps.Store,
		router:   deps.Router,
		presence: deps.Presence,
		relay:    deps.Relay,
		now:      now,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	n := s.build(req)
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	s.router.SendToUser(n.RecipientID, domain.EventNewNotification, domain.NotificationPayload{Notification: n})
	s.pushStats(ctx, n.RecipientID)
	s.relayIfOffline(ctx, n)
	return n, nil
}

func (s *service) CreateBulk(ctx context.Context, req domain.BulkNotificationRequest) ([]domain.Notification, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	recipients := dedupe(req.Recipients)
	ns := make([]domain.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		ns = append(ns, *s.build(req.Data.ForRecipient(recipientID)))
	}
	if err := s.store.CreateMany(ctx, ns); err != nil {
		return nil, err
	}
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	for i := range ns {
		n := &ns[i]
		s.router.SendToUser(n.RecipientID, domain.EventNewNotification, domain.NotificationPayload{Notification: n})
		s.pushStats(ctx, n.RecipientID)
		s.relayIfOffline(ctx, n)
	}
	return ns, nil
}

func (s *service) build(req domain.CreateNotificationRequest) *domain.Notification {
	now := s.now()
	n := &domain.Notification{
		NotificationID: id.New(),
		Title:          req.Title,
		Message:        req.Message,
		Category:       req.Category,
		Priority:       req.Priority,
		RecipientID:    req.RecipientID,
		SenderID:       req.SenderID,
		ExpiresAt:      req.ExpiresAt,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if n.Category == "" {
		n.Category = domain.CategoryInfo
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityMedium
	}
	return n
}

func (s *service) relayIfOffline(ctx context.Context, n *domain.Notification) {
	if s.relay == nil || s.presence == nil || n.Priority != domain.PriorityUrgent {
		return
	}
	if s.presence.IsConnected(n.RecipientID) {
		return
	}
	if err := s.relay.PublishNotification(ctx, n); err != nil {
		slog.Warn("offline relay failed", "notification_id", n.NotificationID, "user_id", n.RecipientID, "error", err)
	}
}

func (s *service) Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	return s.store.Get(ctx, notificationID, userID)
}

func (s *service) Audit(ctx context.Context, notificationID string) (*domain.Notification, error) {
	if notificationID == "" {
		return nil, fmt.Errorf("notification id is required: %w", domain.ErrBadRequest)
	}
	return s.store.GetByID(ctx, notificationID)
}

func (s *service) List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.NotificationPage, error) {
	opts = opts.Normalize()
	ns, total, err := s.store.List(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		ns = []domain.Notification{}
	}
	return &domain.NotificationPage{
		Notifications: ns,
		Pagination:    domain.NewPagination(opts.Page, opts.Limit, total),
	}, nil
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.store.ListUnread(ctx, userID, s.now())
}

func (s *service) ListRead(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = domain.DefaultReadLimit
	}
	return s.store.ListRead(ctx, userID, limit)
}

func (s *service) Search(ctx context.Context, userID string, c domain.SearchCriteria) ([]domain.Notification, error) {
	return s.store.Search(ctx, userID, c)
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.store.MarkRead(ctx, notificationID, userID, s.now())
	if err != nil {
		return nil, err
	}
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	s.router.SendToUser(userID, domain.EventNotificationUpdated, domain.NotificationUpdatedPayload{
		Type:         domain.UpdateMarkedAsRead,
		Notification: n,
	})
	s.pushStats(ctx, userID)
	return n, nil
}

func (s *service) MarkManyRead(ctx context.Context, notificationIDs []string, userID string) (int, error) {
	if len(notificationIDs) == 0 {
		return 0, fmt.Errorf("notificationIds is required: %w", domain.ErrBadRequest)
	}
	count, err := s.store.MarkManyRead(ctx, dedupe(notificationIDs), userID, s.now())
	return s.afterBulk(ctx, userID, domain.UpdateMarkedMultipleAsRead, count, err)
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.store.MarkAllRead(ctx, userID, s.now())
	return s.afterBulk(ctx, userID, domain.UpdateMarkedAllAsRead, count, err)
}

func (s *service) Delete(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.store.SoftDelete(ctx, notificationID, userID, s.now())
	if err != nil {
		return nil, err
	}
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	s.router.SendToUser(userID, domain.EventNotificationDeleted, domain.NotificationDeletedPayload{
		NotificationID: notificationID,
		Notification:   n,
	})
	s.pushStats(ctx, userID)
	return n, nil
}

func (s *service) DeleteMany(ctx context.Context, notificationIDs []string, userID string) (int, error) {
	if len(notificationIDs) == 0 {
		return 0, fmt.Errorf("notificationIds is required: %w", domain.ErrBadRequest)
	}
	count, err := s.store.SoftDeleteMany(ctx, dedupe(notificationIDs), userID, s.now())
	return s.afterBulk(ctx, userID, domain.UpdateDeletedMultiple, count, err)
}

func (s *service) DeleteAll(ctx context.Context, userID string) (int, error) {
	count, err := s.store.SoftDeleteAll(ctx, userID, s.now())
	return s.afterBulk(ctx, userID, domain.UpdateDeletedAll, count, err)
}

// afterBulk pushes the aggregate update for a bulk transition. When the store
// cannot say how many records changed the count event is withheld, but stats
// are still refreshed so clients converge on the persisted state.
func (s *service) afterBulk(ctx context.Context, userID, updateType string, count int, err error) (int, error) {
	if err != nil && !errors.Is(err, domain.ErrIndeterminate) {
		return 0, err
	}
	ctx, cancel := afterWrite(ctx)
	defer cancel()
	if err != nil {
		s.pushStats(ctx, userID)
		return 0, err
	}
	s.router.SendToUser(userID, domain.EventNotificationsUpdated, domain.NotificationsUpdatedPayload{
		Type:  updateType,
		Count: count,
	})
	s.pushStats(ctx, userID)
	return count, nil
}

// CleanupExpired soft-deletes read notifications older than maxAgeDays
// across all users. It emits no events.
func (s *service) CleanupExpired(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = defaultCleanupDays
	}
	now := s.now()
	cutoff := now.AddDate(0, 0, -maxAgeDays)
	count, err := s.store.SoftDeleteReadBefore(ctx, cutoff, now)
	if err != nil {
		return count, err
	}
	slog.Info("notification cleanup", "deleted", count, "cutoff", cutoff)
	return count, nil
}

// afterWrite detaches ctx from the caller's cancellation. Once a write is
// persisted its pushes must still go out if the caller has gone away.
func afterWrite(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
