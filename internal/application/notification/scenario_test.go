package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-notify-hub/internal/application/registry"
	"github.com/go-notify-hub/internal/application/router"
	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameLog struct {
	mu     sync.Mutex
	frames map[string][]domain.Frame
}

func (l *frameLog) Send(connectionID string, frame []byte) error {
	var f domain.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames[connectionID] = append(l.frames[connectionID], f)
	return nil
}

func (l *frameLog) of(connectionID string) []domain.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Frame(nil), l.frames[connectionID]...)
}

type harness struct {
	svc   Service
	store *memory.NotificationRepo
	reg   *registry.Registry
	log   *frameLog
}

func newHarness() *harness {
	reg := registry.New()
	log := &frameLog{frames: map[string][]domain.Frame{}}
	store := memory.NewNotificationRepo()
	svc := NewService(ServiceDeps{
		Store:    store,
		Router:   router.New(reg, log),
		Presence: reg,
	})
	return &harness{svc: svc, store: store, reg: reg, log: log}
}

func decode[T any](t *testing.T, f domain.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func TestScenario_CreateForOfflineUser(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	n, err := h.svc.Create(ctx, domain.CreateNotificationRequest{Title: "T", Message: "M", RecipientID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.NotificationID)

	st, err := h.svc.ComputeStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Unread)
	assert.Equal(t, st.Total-st.Unread, st.Read)
}

func TestScenario_MarkAllReadAcrossDevices(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.svc.Create(ctx, domain.CreateNotificationRequest{Title: "T", Message: "M", RecipientID: "u1"})
		require.NoError(t, err)
	}
	h.reg.Bind("c1", "u1")
	h.reg.Bind("c2", "u1")

	count, err := h.svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, conn := range []string{"c1", "c2"} {
		frames := h.log.of(conn)
		require.Len(t, frames, 2, conn)
		assert.Equal(t, domain.EventNotificationsUpdated, frames[0].Type)
		assert.Equal(t, 3, decode[domain.NotificationsUpdatedPayload](t, frames[0]).Count)
		assert.Equal(t, domain.EventNotificationStats, frames[1].Type)
		assert.Equal(t, 0, decode[domain.Stats](t, frames[1]).Unread)
	}
}

func TestScenario_NotFoundThenAlreadyRead(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.MarkRead(ctx, "does-not-exist", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := h.svc.Create(ctx, domain.CreateNotificationRequest{Title: "T", Message: "M", RecipientID: "u1"})
	require.NoError(t, err)

	_, err = h.svc.MarkRead(ctx, n.NotificationID, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound, "foreign notifications look absent")

	_, err = h.svc.MarkRead(ctx, n.NotificationID, "u1")
	require.NoError(t, err)
	_, err = h.svc.MarkRead(ctx, n.NotificationID, "u1")
	assert.ErrorIs(t, err, domain.ErrAlreadyInState)
}

func TestScenario_StatsPushReflectsMutation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.reg.Bind("c1", "u1")

	n, err := h.svc.Create(ctx, domain.CreateNotificationRequest{Title: "T", Message: "M", RecipientID: "u1"})
	require.NoError(t, err)
	_, err = h.svc.Delete(ctx, n.NotificationID, "u1")
	require.NoError(t, err)

	frames := h.log.of("c1")
	require.Len(t, frames, 4)
	assert.Equal(t, domain.EventNewNotification, frames[0].Type)
	assert.Equal(t, 1, decode[domain.Stats](t, frames[1]).Total)
	assert.Equal(t, domain.EventNotificationDeleted, frames[2].Type)
	assert.Equal(t, n.NotificationID, decode[domain.NotificationDeletedPayload](t, frames[2]).NotificationID)
	assert.Equal(t, 0, decode[domain.Stats](t, frames[3]).Total)

	audit, err := h.store.GetByID(ctx, n.NotificationID)
	require.NoError(t, err)
	assert.True(t, audit.IsDeleted)
}
