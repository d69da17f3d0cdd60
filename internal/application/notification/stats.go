package notification

import (
	"context"
	"log/slog"

	"github.com/go-notify-hub/internal/domain"
)

// ComputeStats aggregates the user's active notifications. Read is derived
// from Total and Unread regardless of what the store reports.
func (s *service) ComputeStats(ctx context.Context, userID string) (*domain.Stats, error) {
	st, err := s.store.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.Read = st.Total - st.Unread
	if st.ByCategory == nil {
		st.ByCategory = []domain.CountByKey{}
	}
	if st.ByPriority == nil {
		st.ByPriority = []domain.CountByKey{}
	}
	return &st, nil
}

// PushStats recomputes and pushes stats to every connection of userID.
func (s *service) PushStats(ctx context.Context, userID string) error {
	st, err := s.ComputeStats(ctx, userID)
	if err != nil {
		return err
	}
	s.router.SendToUser(userID, domain.EventNotificationStats, st)
	return nil
}

// pushStats is PushStats for side-effect paths where the mutation already
// succeeded and a stats failure must not fail the caller.
func (s *service) pushStats(ctx context.Context, userID string) {
	if err := s.PushStats(ctx, userID); err != nil {
		slog.Error("push stats", "user_id", userID, "error", err)
	}
}
