package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-notify-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind_MultipleConnectionsPerUser(t *testing.T) {
	r := New()
	r.Bind("c1", "u1")
	r.Bind("c2", "u1")
	r.Bind("c3", "u2")

	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsFor("u1"))
	assert.Equal(t, []string{"c3"}, r.ConnectionsFor("u2"))
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"u1", "u2"}, r.ConnectedUsers())
	assert.True(t, r.IsConnected("u1"))
}

func TestBind_Idempotent(t *testing.T) {
	r := New()
	r.Bind("c1", "u1")
	r.Bind("c1", "u1")

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"c1"}, r.ConnectionsFor("u1"))
}

func TestBind_LastBindWins(t *testing.T) {
	r := New()
	r.Bind("c", "u1")
	r.Bind("c", "u2")

	userID, ok := r.UserFor("c")
	require.True(t, ok)
	assert.Equal(t, "u2", userID)
	assert.NotContains(t, r.ConnectionsFor("u1"), "c")
	assert.False(t, r.IsConnected("u1"))
	assert.Equal(t, 1, r.Count())
}

func TestUnbind_Idempotent(t *testing.T) {
	r := New()
	r.Bind("c1", "u1")
	r.Bind("c2", "u1")

	userID, ok := r.Unbind("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)

	_, ok = r.Unbind("c1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"c2"}, r.ConnectionsFor("u1"))
}

func TestConnectionsFor_OfflineUserIsEmpty(t *testing.T) {
	r := New()
	assert.Empty(t, r.ConnectionsFor("ghost"))
	assert.False(t, r.IsConnected("ghost"))
	_, ok := r.UserFor("nope")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentBindUnbind(t *testing.T) {
	r := New()
	const workers = 50
	const perWorker = 40

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				conn := fmt.Sprintf("c-%d-%d", w, i)
				r.Bind(conn, fmt.Sprintf("u-%d", i%5))
				r.Bind(conn, fmt.Sprintf("u-%d", (i+1)%5))
				_ = r.ConnectionsFor(fmt.Sprintf("u-%d", i%5))
				_ = r.ConnectedUsers()
				if i%2 == 0 {
					r.Unbind(conn)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker/2, r.Count())
	total := 0
	for _, u := range r.ConnectedUsers() {
		for _, c := range r.ConnectionsFor(u) {
			bound, ok := r.UserFor(c)
			require.True(t, ok)
			assert.Equal(t, u, bound)
			total++
		}
	}
	assert.Equal(t, r.Count(), total)
}

func TestAuthorize(t *testing.T) {
	r := New()
	r.Bind("c1", "u1")

	assert.True(t, r.Authorize("c1", "u1"))
	assert.False(t, r.Authorize("c1", "u2"))
	assert.False(t, r.Authorize("c1", ""))
	assert.False(t, r.Authorize("unbound", "u1"))

	assert.NoError(t, r.Require("c1", "u1"))
	assert.ErrorIs(t, r.Require("c1", "u2"), domain.ErrUnauthorized)
}

func TestAuthorize_AfterRebind(t *testing.T) {
	r := New()
	r.Bind("c1", "u1")
	r.Bind("c1", "u2")

	assert.False(t, r.Authorize("c1", "u1"))
	assert.True(t, r.Authorize("c1", "u2"))
}
