package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-notify-hub/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// CountEnvelope wraps bulk mutation results.
type CountEnvelope struct {
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

type idsRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps a domain error onto a status code and reason code. Store
// failures are logged and reported without detail.
func httpError(w http.ResponseWriter, err error) {
	code := domain.ReasonCode(err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, MessageEnvelope{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrAlreadyInState):
		writeJSON(w, http.StatusConflict, MessageEnvelope{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, MessageEnvelope{Error: err.Error(), Code: code})
	case errors.Is(err, domain.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: err.Error(), Code: code})
	default:
		slog.Error("request failed", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, MessageEnvelope{Error: "internal error", Code: code})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
	}
	return nil
}
