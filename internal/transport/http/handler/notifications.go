package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/transport/http/middleware"
)

// NotificationHandler serves the authenticated user's own notifications.
// The user id always comes from the bearer token.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return claims.UserID, true
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		httpError(w, err)
		return
	}
	page, err := h.svc.List(r.Context(), uid, opts)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	ns, err := h.svc.ListUnread(r.Context(), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NotificationListPayload{Count: len(ns), Notifications: ns})
}

func (h *NotificationHandler) ListRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpError(w, err)
		return
	}
	ns, err := h.svc.ListRead(r.Context(), uid, limit)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NotificationListPayload{Count: len(ns), Notifications: ns})
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.ComputeStats(r.Context(), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *NotificationHandler) Search(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	c, err := parseSearchCriteria(r)
	if err != nil {
		httpError(w, err)
		return
	}
	ns, err := h.svc.Search(r.Context(), uid, c)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NotificationListPayload{Count: len(ns), Notifications: ns})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) MarkManyRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	count, err := h.svc.MarkManyRead(r.Context(), req.NotificationIDs, uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	count, err := h.svc.MarkAllRead(r.Context(), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, err)
		return
	}
	count, err := h.svc.DeleteMany(r.Context(), req.NotificationIDs, uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	count, err := h.svc.DeleteAll(r.Context(), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query %s must be an integer: %w", key, domain.ErrBadRequest)
	}
	return v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("query %s must be a boolean: %w", key, domain.ErrBadRequest)
	}
	return &v, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("query %s must be RFC 3339: %w", key, domain.ErrBadRequest)
	}
	return &v, nil
}

func queryCategory(r *http.Request) *domain.Category {
	if raw := r.URL.Query().Get("type"); raw != "" {
		c := domain.Category(raw)
		return &c
	}
	return nil
}

func queryPriority(r *http.Request) *domain.Priority {
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p := domain.Priority(raw)
		return &p
	}
	return nil
}

func parseListOptions(r *http.Request) (domain.ListOptions, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return domain.ListOptions{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return domain.ListOptions{}, err
	}
	isRead, err := queryBool(r, "isRead")
	if err != nil {
		return domain.ListOptions{}, err
	}
	return domain.ListOptions{
		Page:     page,
		Limit:    limit,
		IsRead:   isRead,
		Category: queryCategory(r),
		Priority: queryPriority(r),
	}, nil
}

func parseSearchCriteria(r *http.Request) (domain.SearchCriteria, error) {
	isRead, err := queryBool(r, "isRead")
	if err != nil {
		return domain.SearchCriteria{}, err
	}
	start, err := queryTime(r, "startDate")
	if err != nil {
		return domain.SearchCriteria{}, err
	}
	end, err := queryTime(r, "endDate")
	if err != nil {
		return domain.SearchCriteria{}, err
	}
	return domain.SearchCriteria{
		Query:     r.URL.Query().Get("q"),
		Category:  queryCategory(r),
		Priority:  queryPriority(r),
		IsRead:    isRead,
		StartDate: start,
		EndDate:   end,
	}, nil
}
