package notification

import (
	"context"
	"time"

	"github.com/go-notify-hub/internal/domain"
)

// Store is the notification persistence contract. Implementations return
// errors wrapping domain.ErrNotFound for absent or foreign records,
// domain.ErrAlreadyInState for redundant transitions, domain.ErrIndeterminate
// when a non-atomic bulk write fails part way, and domain.ErrStoreFailure for
// anything else. Get and every listing only see non-deleted records.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	// CreateMany inserts all records or none.
	CreateMany(ctx context.Context, ns []domain.Notification) error
	Get(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error)
	// GetByID includes soft-deleted records.
	GetByID(ctx context.Context, notificationID string) (*domain.Notification, error)
	List(ctx context.Context, recipientID string, opts domain.ListOptions) ([]domain.Notification, int, error)
	ListUnread(ctx context.Context, recipientID string, now time.Time) ([]domain.Notification, error)
	ListRead(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	Search(ctx context.Context, recipientID string, c domain.SearchCriteria) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error)
	MarkManyRead(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	SoftDelete(ctx context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error)
	SoftDeleteMany(ctx context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error)
	SoftDeleteAll(ctx context.Context, recipientID string, at time.Time) (int, error)
	// SoftDeleteReadBefore deletes read records of every recipient whose
	// ReadAt is before cutoff.
	SoftDeleteReadBefore(ctx context.Context, cutoff, at time.Time) (int, error)
	Stats(ctx context.Context, recipientID string) (domain.Stats, error)
}
