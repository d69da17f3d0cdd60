// Package memory holds an in-process notification store for local
// development and tests. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-notify-hub/internal/domain"
)

type NotificationRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{records: make(map[string]*domain.Notification)}
}

func (r *NotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[n.NotificationID]; ok {
		return fmt.Errorf("duplicate notification %s: %w", n.NotificationID, domain.ErrStoreFailure)
	}
	cp := *n
	r.records[n.NotificationID] = &cp
	return nil
}

func (r *NotificationRepo) CreateMany(_ context.Context, ns []domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ns {
		if _, ok := r.records[ns[i].NotificationID]; ok {
			return fmt.Errorf("duplicate notification %s: %w", ns[i].NotificationID, domain.ErrStoreFailure)
		}
	}
	for i := range ns {
		cp := ns[i]
		r.records[cp.NotificationID] = &cp
	}
	return nil
}

func (r *NotificationRepo) Get(_ context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, err := r.active(notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	cp := *n
	return &cp, nil
}

func (r *NotificationRepo) GetByID(_ context.Context, notificationID string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.records[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

// active must be called with mu held.
func (r *NotificationRepo) active(notificationID, recipientID string) (*domain.Notification, error) {
	n, ok := r.records[notificationID]
	if !ok || n.IsDeleted || n.RecipientID != recipientID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return n, nil
}

func (r *NotificationRepo) List(_ context.Context, recipientID string, opts domain.ListOptions) ([]domain.Notification, int, error) {
	opts = opts.Normalize()
	all := r.filter(recipientID, func(n *domain.Notification) bool {
		if opts.IsRead != nil && n.IsRead != *opts.IsRead {
			return false
		}
		if opts.Category != nil && n.Category != *opts.Category {
			return false
		}
		if opts.Priority != nil && n.Priority != *opts.Priority {
			return false
		}
		return true
	})
	sortByCreatedDesc(all)
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

func (r *NotificationRepo) ListUnread(_ context.Context, recipientID string, now time.Time) ([]domain.Notification, error) {
	out := r.filter(recipientID, func(n *domain.Notification) bool {
		return !n.IsRead && !n.Expired(now)
	})
	sortByCreatedDesc(out)
	return out, nil
}

func (r *NotificationRepo) ListRead(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	out := r.filter(recipientID, func(n *domain.Notification) bool { return n.IsRead })
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReadAt.After(*out[j].ReadAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) Search(_ context.Context, recipientID string, c domain.SearchCriteria) ([]domain.Notification, error) {
	out := r.filter(recipientID, c.Matches)
	sortByCreatedDesc(out)
	return out, nil
}

// filter returns copies of the recipient's active records accepted by keep.
func (r *NotificationRepo) filter(recipientID string, keep func(*domain.Notification) bool) []domain.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Notification{}
	for _, n := range r.records {
		if n.RecipientID != recipientID || n.IsDeleted || !keep(n) {
			continue
		}
		out = append(out, *n)
	}
	return out
}

func (r *NotificationRepo) MarkRead(_ context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.active(notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	if !n.MarkRead(at) {
		return nil, fmt.Errorf("notification %s already read: %w", notificationID, domain.ErrAlreadyInState)
	}
	cp := *n
	return &cp, nil
}

func (r *NotificationRepo) MarkManyRead(_ context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, nid := range notificationIDs {
		n, err := r.active(nid, recipientID)
		if err != nil {
			continue
		}
		if n.MarkRead(at) {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.records {
		if n.RecipientID == recipientID && !n.IsDeleted && n.MarkRead(at) {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) SoftDelete(_ context.Context, notificationID, recipientID string, at time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.active(notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	n.IsDeleted = true
	n.UpdatedAt = at
	cp := *n
	return &cp, nil
}

func (r *NotificationRepo) SoftDeleteMany(_ context.Context, notificationIDs []string, recipientID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, nid := range notificationIDs {
		n, err := r.active(nid, recipientID)
		if err != nil {
			continue
		}
		n.IsDeleted = true
		n.UpdatedAt = at
		count++
	}
	return count, nil
}

func (r *NotificationRepo) SoftDeleteAll(_ context.Context, recipientID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.records {
		if n.RecipientID == recipientID && !n.IsDeleted {
			n.IsDeleted = true
			n.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) SoftDeleteReadBefore(_ context.Context, cutoff, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.records {
		if n.IsDeleted || !n.IsRead || n.ReadAt == nil || !n.ReadAt.Before(cutoff) {
			continue
		}
		n.IsDeleted = true
		n.UpdatedAt = at
		count++
	}
	return count, nil
}

func (r *NotificationRepo) Stats(_ context.Context, recipientID string) (domain.Stats, error) {
	return domain.StatsOf(r.filter(recipientID, func(*domain.Notification) bool { return true })), nil
}

func sortByCreatedDesc(ns []domain.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].NotificationID > ns[j].NotificationID
	})
}
