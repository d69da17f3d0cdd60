package router

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/go-notify-hub/internal/application/registry"
	"github.com/go-notify-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(connectionID string, frame []byte) error {
	return m.Called(connectionID, frame).Error(0)
}

// recordingSender keeps frames per connection in arrival order.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]domain.Frame
}

func (s *recordingSender) Send(connectionID string, frame []byte) error {
	var f domain.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = map[string][]domain.Frame{}
	}
	s.frames[connectionID] = append(s.frames[connectionID], f)
	return nil
}

func (s *recordingSender) types(connectionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames[connectionID] {
		out = append(out, f.Type)
	}
	return out
}

// --- tests ---

func TestSendToUser_FansOutToEveryConnection(t *testing.T) {
	reg := registry.New()
	reg.Bind("c1", "u1")
	reg.Bind("c2", "u1")
	reg.Bind("c3", "u2")
	rec := &recordingSender{}
	r := New(reg, rec)

	n := r.SendToUser("u1", domain.EventNotificationStats, domain.Stats{Total: 1})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{domain.EventNotificationStats}, rec.types("c1"))
	assert.Equal(t, []string{domain.EventNotificationStats}, rec.types("c2"))
	assert.Empty(t, rec.types("c3"))
}

func TestSendToUser_OfflineIsNoop(t *testing.T) {
	s := &mockSender{}
	r := New(registry.New(), s)

	assert.Equal(t, 0, r.SendToUser("ghost", domain.EventNewNotification, nil))
	s.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendToUser_PreservesOrder(t *testing.T) {
	reg := registry.New()
	reg.Bind("c1", "u1")
	reg.Bind("c2", "u1")
	rec := &recordingSender{}
	r := New(reg, rec)

	r.SendToUser("u1", domain.EventNotificationsUpdated, domain.NotificationsUpdatedPayload{Count: 3})
	r.SendToUser("u1", domain.EventNotificationStats, domain.Stats{})

	want := []string{domain.EventNotificationsUpdated, domain.EventNotificationStats}
	assert.Equal(t, want, rec.types("c1"))
	assert.Equal(t, want, rec.types("c2"))
}

func TestSendToConnection_GoneIsTolerated(t *testing.T) {
	s := &mockSender{}
	s.On("Send", "c1", mock.Anything).Return(ErrConnectionGone)
	r := New(registry.New(), s)

	assert.False(t, r.SendToConnection("c1", domain.EventPong, struct{}{}))
	s.AssertExpectations(t)
}

func TestBroadcastAll_SkipsFailingConnection(t *testing.T) {
	reg := registry.New()
	reg.Bind("c1", "u1")
	reg.Bind("c2", "u2")
	s := &mockSender{}
	s.On("Send", "c1", mock.Anything).Return(errors.New("buffer full"))
	s.On("Send", "c2", mock.Anything).Return(nil)
	r := New(reg, s)

	assert.Equal(t, 1, r.BroadcastAll(domain.EventSystem, map[string]string{"message": "hi"}))
	s.AssertExpectations(t)
}

func TestFrameShape(t *testing.T) {
	reg := registry.New()
	reg.Bind("c1", "u1")
	rec := &recordingSender{}
	r := New(reg, rec)

	r.SendToUser("u1", domain.EventNotificationDeleted, domain.NotificationDeletedPayload{NotificationID: "n1"})

	require.Len(t, rec.frames["c1"], 1)
	var payload domain.NotificationDeletedPayload
	require.NoError(t, json.Unmarshal(rec.frames["c1"][0].Data, &payload))
	assert.Equal(t, "n1", payload.NotificationID)
}
