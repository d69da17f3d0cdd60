package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-notify-hub/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSONError writes the same {"error", "code"} shape the handlers use.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: statusCode(status)})
}

func statusCode(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.CodeUnauthorized
	case http.StatusTooManyRequests:
		return domain.CodeRateLimited
	default:
		return ""
	}
}
