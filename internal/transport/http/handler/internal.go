package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/pkg/validate"
)

type eventRouter interface {
	SendToUser(userID, event string, payload interface{}) int
	BroadcastAll(event string, payload interface{}) int
}

type presence interface {
	IsConnected(userID string) bool
	ConnectedUsers() []string
	ConnectionsFor(userID string) []string
	Count() int
}

type socketCounter interface {
	Count() int
}

// TokenIssuer mints the bearer tokens clients present on authenticate.
type TokenIssuer interface {
	Sign(userID, role string) (string, error)
}

// InternalHandler serves trusted callers inside the platform that trigger
// notifications or raw events on behalf of other services.
type InternalHandler struct {
	svc      notification.Service
	router   eventRouter
	presence presence
	sockets  socketCounter
	tokens   TokenIssuer
}

// NewInternalHandler wires the trusted endpoints. tokens may be nil, in which
// case token issuing answers 503.
func NewInternalHandler(svc notification.Service, router eventRouter, presence presence, sockets socketCounter, tokens TokenIssuer) *InternalHandler {
	return &InternalHandler{svc: svc, router: router, presence: presence, sockets: sockets, tokens: tokens}
}

type SendEnvelope struct {
	Notification *domain.Notification `json:"notification"`
	Online       bool                 `json:"online"`
}

type BulkSendEnvelope struct {
	Notifications []domain.Notification `json:"notifications"`
	Count         int                   `json:"count"`
	Online        int                   `json:"online"`
	// Error and Code are set when only part of a chunked send went out.
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type DeliveryEnvelope struct {
	Delivered int  `json:"delivered"`
	Online    bool `json:"online"`
}

type SocketStatsEnvelope struct {
	ConnectedUsers   int      `json:"connectedUsers"`
	Users            []string `json:"users"`
	BoundConnections int      `json:"boundConnections"`
	OpenSockets      int      `json:"openSockets"`
}

type UserConnectionsEnvelope struct {
	UserID      string   `json:"userId"`
	Online      bool     `json:"online"`
	Connections []string `json:"connections"`
}

type systemRequest struct {
	Title    string                 `json:"title" validate:"required,max=100"`
	Message  string                 `json:"message" validate:"required,max=500"`
	Priority domain.Priority        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	UserIDs  []string               `json:"userIds" validate:"omitempty,max=100,dive,required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type customRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Event  string          `json:"event" validate:"required"`
	Data   json.RawMessage `json:"data"`
}

type broadcastRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

type TokenEnvelope struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type tokenRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=user admin"`
}

type cleanupRequest struct {
	MaxAgeDays int `json:"maxAgeDays" validate:"gte=0"`
}

func validateRequest(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	return nil
}

func (h *InternalHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	n, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SendEnvelope{Notification: n, Online: h.presence.IsConnected(n.RecipientID)})
}

func (h *InternalHandler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkNotificationRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	ns, err := h.svc.CreateBulk(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.bulkEnvelope(ns))
}

func (h *InternalHandler) bulkEnvelope(ns []domain.Notification) BulkSendEnvelope {
	online := 0
	for i := range ns {
		if h.presence.IsConnected(ns[i].RecipientID) {
			online++
		}
	}
	return BulkSendEnvelope{Notifications: ns, Count: len(ns), Online: online}
}

// System creates an info notification with no sender for the listed users,
// or for every connected user when none are listed.
func (h *InternalHandler) System(w http.ResponseWriter, r *http.Request) {
	var req systemRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httpError(w, err)
		return
	}
	recipients := req.UserIDs
	if len(recipients) == 0 {
		recipients = h.presence.ConnectedUsers()
	}
	body := domain.BulkNotificationBody{
		Title:    req.Title,
		Message:  req.Message,
		Category: domain.CategoryInfo,
		Priority: req.Priority,
		Metadata: req.Metadata,
	}

	created := []domain.Notification{}
	for start := 0; start < len(recipients); start += domain.MaxBulkSize {
		end := min(start+domain.MaxBulkSize, len(recipients))
		ns, err := h.svc.CreateBulk(r.Context(), domain.BulkNotificationRequest{Recipients: recipients[start:end], Data: body})
		if err != nil {
			if len(created) == 0 {
				httpError(w, err)
				return
			}
			// Earlier chunks are persisted and pushed; report what went out.
			slog.Error("system notification partially sent", "sent", len(created), "recipients", len(recipients), "error", err)
			partial := fmt.Errorf("sent to %d of %d recipients: %w", len(created), len(recipients), domain.ErrIndeterminate)
			env := h.bulkEnvelope(created)
			env.Error = partial.Error()
			env.Code = domain.ReasonCode(partial)
			writeJSON(w, http.StatusInternalServerError, env)
			return
		}
		created = append(created, ns...)
	}
	writeJSON(w, http.StatusCreated, h.bulkEnvelope(created))
}

// SendCustom pushes an arbitrary event to one user's live connections
// without persisting anything.
func (h *InternalHandler) SendCustom(w http.ResponseWriter, r *http.Request) {
	var req customRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httpError(w, err)
		return
	}
	delivered := h.router.SendToUser(req.UserID, req.Event, rawPayload(req.Data))
	writeJSON(w, http.StatusOK, DeliveryEnvelope{Delivered: delivered, Online: delivered > 0})
}

func (h *InternalHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httpError(w, err)
		return
	}
	delivered := h.router.BroadcastAll(req.Event, rawPayload(req.Data))
	writeJSON(w, http.StatusOK, DeliveryEnvelope{Delivered: delivered, Online: delivered > 0})
}

func rawPayload(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return struct{}{}
	}
	return data
}

func (h *InternalHandler) SocketStats(w http.ResponseWriter, _ *http.Request) {
	users := h.presence.ConnectedUsers()
	writeJSON(w, http.StatusOK, SocketStatsEnvelope{
		ConnectedUsers:   len(users),
		Users:            users,
		BoundConnections: h.presence.Count(),
		OpenSockets:      h.sockets.Count(),
	})
}

func (h *InternalHandler) UserConnections(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "userId")
	conns := h.presence.ConnectionsFor(uid)
	writeJSON(w, http.StatusOK, UserConnectionsEnvelope{UserID: uid, Online: len(conns) > 0, Connections: conns})
}

func (h *InternalHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			httpError(w, err)
			return
		}
	}
	if err := validateRequest(&req); err != nil {
		httpError(w, err)
		return
	}
	count, err := h.svc.CleanupExpired(r.Context(), req.MaxAgeDays)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count, Message: "cleanup complete"})
}

// Audit returns a notification by id, including soft-deleted ones.
func (h *InternalHandler) Audit(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// IssueToken signs a socket token for a user on behalf of a trusted backend.
func (h *InternalHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "token signing is not configured")
		return
	}
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	if err := validateRequest(&req); err != nil {
		httpError(w, err)
		return
	}
	token, err := h.tokens.Sign(req.UserID, req.Role)
	if err != nil {
		slog.Warn("token not issued", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "token signing is not configured")
		return
	}
	writeJSON(w, http.StatusCreated, TokenEnvelope{Token: token, UserID: req.UserID})
}
