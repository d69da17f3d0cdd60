// Package socket maps inbound connection events onto the notification
// lifecycle. It knows nothing about the wire transport; the transport calls
// OnConnect, HandleEvent and OnDisconnect for each live connection.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/domain"
)

type bindings interface {
	Bind(connectionID, userID string)
	Unbind(connectionID string) (string, bool)
	Require(connectionID, claimedUserID string) error
}

type connectionSender interface {
	SendToConnection(connectionID, event string, payload interface{}) bool
}

// tokenVerifier resolves a bearer token to the user it was issued for.
type tokenVerifier interface {
	UserIDFromToken(token string) (string, error)
}

// request is the union of every inbound payload shape.
type request struct {
	UserID          string                `json:"userId"`
	Token           string                `json:"token"`
	NotificationID  string                `json:"notificationId"`
	NotificationIDs []string              `json:"notificationIds"`
	Options         domain.ListOptions    `json:"options"`
	SearchParams    domain.SearchCriteria `json:"searchParams"`
}

type Dispatcher struct {
	bindings      bindings
	sender        connectionSender
	notifications notification.Service
	tokens        tokenVerifier
	requireToken  bool
	handlers      map[string]action
}

type Deps struct {
	Bindings      bindings
	Sender        connectionSender
	Notifications notification.Service
	// Tokens is optional. When set, a token supplied with authenticate is
	// always checked; RequireToken makes it mandatory.
	Tokens       tokenVerifier
	RequireToken bool
}

func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		bindings:      deps.Bindings,
		sender:        deps.Sender,
		notifications: deps.Notifications,
		tokens:        deps.Tokens,
		requireToken:  deps.RequireToken,
	}
	d.handlers = d.actions()
	return d
}

func (d *Dispatcher) OnConnect(connectionID string) {
	slog.Debug("connection opened", "connection_id", connectionID)
}

// OnDisconnect removes the connection's binding. Safe to call more than once.
func (d *Dispatcher) OnDisconnect(connectionID string) {
	if userID, ok := d.bindings.Unbind(connectionID); ok {
		slog.Info("user disconnected", "connection_id", connectionID, "user_id", userID)
		return
	}
	slog.Debug("connection closed", "connection_id", connectionID)
}

// HandleEvent processes one inbound event. Failures are reported back to the
// originating connection as events and never close it.
func (d *Dispatcher) HandleEvent(ctx context.Context, connectionID, event string, data json.RawMessage) {
	var req request
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req); err != nil {
			if event == domain.EventAuthenticate {
				d.authFailed(connectionID, domain.CodeBadRequest, "malformed payload")
				return
			}
			d.reject(connectionID, event, fmt.Errorf("malformed payload: %w", domain.ErrBadRequest))
			return
		}
	}

	switch event {
	case domain.EventAuthenticate:
		d.authenticate(ctx, connectionID, req)
		return
	case domain.EventPing:
		d.sender.SendToConnection(connectionID, domain.EventPong, struct{}{})
		return
	}

	handle, ok := d.handlers[event]
	if !ok {
		d.sender.SendToConnection(connectionID, domain.EventError, domain.ErrorPayload{
			Code:    domain.CodeUnknownEvent,
			Message: "unknown event " + event,
			Event:   event,
		})
		return
	}
	if err := d.bindings.Require(connectionID, req.UserID); err != nil {
		slog.Warn("rejected action", "connection_id", connectionID, "user_id", req.UserID, "event", event)
		d.reject(connectionID, event, err)
		return
	}
	if err := handle(ctx, connectionID, req); err != nil {
		d.reject(connectionID, event, err)
	}
}

type action func(ctx context.Context, connectionID string, req request) error

// actions lists every gated event. Lifecycle mutations push their own
// updates to all of the user's connections; reads answer only the caller.
func (d *Dispatcher) actions() map[string]action {
	return map[string]action{
		domain.EventMarkAsRead: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.MarkRead(ctx, req.NotificationID, req.UserID)
			return err
		},
		domain.EventMarkMultipleAsRead: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.MarkManyRead(ctx, req.NotificationIDs, req.UserID)
			return err
		},
		domain.EventMarkAllAsRead: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.MarkAllRead(ctx, req.UserID)
			return err
		},
		domain.EventDeleteNotification: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.Delete(ctx, req.NotificationID, req.UserID)
			return err
		},
		domain.EventDeleteMultiple: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.DeleteMany(ctx, req.NotificationIDs, req.UserID)
			return err
		},
		domain.EventDeleteAll: func(ctx context.Context, _ string, req request) error {
			_, err := d.notifications.DeleteAll(ctx, req.UserID)
			return err
		},
		domain.EventGetNotifications: func(ctx context.Context, connectionID string, req request) error {
			page, err := d.notifications.List(ctx, req.UserID, req.Options)
			if err != nil {
				return err
			}
			d.sender.SendToConnection(connectionID, domain.EventNotificationsList, page)
			return nil
		},
		domain.EventSearchNotifications: func(ctx context.Context, connectionID string, req request) error {
			ns, err := d.notifications.Search(ctx, req.UserID, req.SearchParams)
			if err != nil {
				return err
			}
			d.sender.SendToConnection(connectionID, domain.EventSearchResults, domain.NotificationListPayload{
				Count:         len(ns),
				Notifications: ns,
			})
			return nil
		},
		domain.EventGetStats: func(ctx context.Context, connectionID string, req request) error {
			st, err := d.notifications.ComputeStats(ctx, req.UserID)
			if err != nil {
				return err
			}
			d.sender.SendToConnection(connectionID, domain.EventNotificationStats, st)
			return nil
		},
	}
}

func (d *Dispatcher) authenticate(ctx context.Context, connectionID string, req request) {
	if req.UserID == "" {
		d.authFailed(connectionID, domain.CodeBadRequest, "userId is required")
		return
	}
	if req.Token != "" || d.requireToken {
		if err := d.verify(req); err != nil {
			slog.Warn("authentication failed", "connection_id", connectionID, "user_id", req.UserID, "error", err)
			d.authFailed(connectionID, domain.CodeUnauthorized, "invalid token")
			return
		}
	}

	d.bindings.Bind(connectionID, req.UserID)
	slog.Info("user authenticated", "connection_id", connectionID, "user_id", req.UserID)

	if err := d.pushBacklog(ctx, connectionID, req.UserID); err != nil {
		slog.Error("backlog", "connection_id", connectionID, "user_id", req.UserID, "error", err)
		d.reject(connectionID, domain.EventAuthenticate, err)
	}
	d.sender.SendToConnection(connectionID, domain.EventAuthenticated, domain.AuthenticatedPayload{
		Success: true,
		Message: "authenticated",
		UserID:  req.UserID,
	})
}

func (d *Dispatcher) verify(req request) error {
	if d.tokens == nil {
		return errors.New("token verification is not configured")
	}
	if req.Token == "" {
		return errors.New("missing token")
	}
	subject, err := d.tokens.UserIDFromToken(req.Token)
	if err != nil {
		return err
	}
	if subject != req.UserID {
		return fmt.Errorf("token issued for %q", subject)
	}
	return nil
}

// pushBacklog sends the unread notifications and current stats to a freshly
// bound connection only.
func (d *Dispatcher) pushBacklog(ctx context.Context, connectionID, userID string) error {
	unread, err := d.notifications.ListUnread(ctx, userID)
	if err != nil {
		return err
	}
	d.sender.SendToConnection(connectionID, domain.EventUnreadNotifications, domain.NotificationListPayload{
		Count:         len(unread),
		Notifications: unread,
	})
	st, err := d.notifications.ComputeStats(ctx, userID)
	if err != nil {
		return err
	}
	d.sender.SendToConnection(connectionID, domain.EventNotificationStats, st)
	return nil
}

func (d *Dispatcher) authFailed(connectionID, code, msg string) {
	d.sender.SendToConnection(connectionID, domain.EventAuthenticationError, domain.AuthenticationErrorPayload{
		Success: false,
		Code:    code,
		Message: msg,
	})
}

func (d *Dispatcher) reject(connectionID, event string, err error) {
	code := domain.ReasonCode(err)
	msg := err.Error()
	if code == domain.CodeStoreFailure {
		slog.Error("event failed", "connection_id", connectionID, "event", event, "error", err)
		msg = "internal error"
	}
	d.sender.SendToConnection(connectionID, domain.EventError, domain.ErrorPayload{
		Code:    code,
		Message: msg,
		Event:   event,
	})
}
