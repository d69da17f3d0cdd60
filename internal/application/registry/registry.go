package registry

import (
	"sort"
	"sync"
)

// Registry is the bidirectional connection <-> user binding table.
// Every method is safe for concurrent use; the lock only ever guards the
// map mutation or lookup itself, never I/O.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]string              // connectionID -> userID
	users       map[string]map[string]struct{} // userID -> set of connectionIDs
}

func New() *Registry {
	return &Registry{
		connections: make(map[string]string),
		users:       make(map[string]map[string]struct{}),
	}
}

// Bind associates connectionID with userID, replacing any previous binding
// of that connection (last bind wins).
func (r *Registry) Bind(connectionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.connections[connectionID]; ok {
		if prev == userID {
			return
		}
		r.detach(connectionID, prev)
	}
	r.connections[connectionID] = userID
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connectionID] = struct{}{}
}

// Unbind removes the binding for connectionID. It reports the user the
// connection was bound to, or "" and false when it was not bound.
func (r *Registry) Unbind(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.connections[connectionID]
	if !ok {
		return "", false
	}
	delete(r.connections, connectionID)
	r.detach(connectionID, userID)
	return userID, true
}

// detach must be called with mu held.
func (r *Registry) detach(connectionID, userID string) {
	set := r.users[userID]
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// ConnectionsFor returns a snapshot of the live connections of userID,
// sorted for deterministic fan-out. It is empty, never nil-with-error, when
// the user is offline.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.users[userID])
}

// UserFor returns the user bound to connectionID.
func (r *Registry) UserFor(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.connections[connectionID]
	return userID, ok
}

// Count returns the number of bound connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// ConnectedUsers returns the distinct users with at least one live connection.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.users)
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// AllConnections returns every bound connection.
func (r *Registry) AllConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connections))
	for id := range r.connections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
