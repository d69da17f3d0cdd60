package router

import (
	"errors"
	"log/slog"

	"github.com/go-notify-hub/internal/domain"
)

// ErrConnectionGone is returned by a Sender when the target connection has
// already been closed. The router treats it as a silent no-op.
var ErrConnectionGone = errors.New("connection gone")

// Sender is the transport's per-connection send primitive. Implementations
// must enqueue frames for one connection in call order.
type Sender interface {
	Send(connectionID string, frame []byte) error
}

// Connections is the read side of the connection registry.
type Connections interface {
	ConnectionsFor(userID string) []string
	AllConnections() []string
}

// Router fans events out to the live connections of a user. Events for the
// same user issued sequentially by one caller are delivered in that order to
// each of the user's connections.
type Router struct {
	conns  Connections
	sender Sender
}

func New(conns Connections, sender Sender) *Router {
	return &Router{conns: conns, sender: sender}
}

// SetSender attaches the transport once it exists. The transport and the
// router reference each other, so one side is wired after construction.
func (r *Router) SetSender(sender Sender) {
	r.sender = sender
}

// SendToUser delivers the event to every connection bound to userID and
// returns how many connections accepted it. No connections is not an error.
func (r *Router) SendToUser(userID, event string, payload interface{}) int {
	targets := r.conns.ConnectionsFor(userID)
	if len(targets) == 0 {
		return 0
	}
	frame, ok := r.encode(event, payload)
	if !ok {
		return 0
	}
	return r.deliver(targets, event, frame)
}

// BroadcastAll delivers the event to every bound connection.
func (r *Router) BroadcastAll(event string, payload interface{}) int {
	targets := r.conns.AllConnections()
	if len(targets) == 0 {
		return 0
	}
	frame, ok := r.encode(event, payload)
	if !ok {
		return 0
	}
	return r.deliver(targets, event, frame)
}

// SendToConnection delivers to exactly one connection. A connection that
// closed in the meantime is ignored.
func (r *Router) SendToConnection(connectionID, event string, payload interface{}) bool {
	frame, ok := r.encode(event, payload)
	if !ok {
		return false
	}
	return r.deliver([]string{connectionID}, event, frame) == 1
}

func (r *Router) encode(event string, payload interface{}) ([]byte, bool) {
	frame, err := domain.EncodeFrame(event, payload)
	if err != nil {
		slog.Error("encode event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (r *Router) deliver(targets []string, event string, frame []byte) int {
	if r.sender == nil {
		return 0
	}
	delivered := 0
	for _, connID := range targets {
		if err := r.sender.Send(connID, frame); err != nil {
			if !errors.Is(err, ErrConnectionGone) {
				slog.Warn("send event", "connection_id", connID, "event", event, "error", err)
			}
			continue
		}
		delivered++
	}
	return delivered
}
