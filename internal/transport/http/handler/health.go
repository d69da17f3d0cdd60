package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type HealthHandler struct {
	sockets socketCounter
}

func NewHealthHandler(sockets socketCounter) *HealthHandler {
	return &HealthHandler{sockets: sockets}
}

type HealthEnvelope struct {
	Status      string `json:"status"`
	OpenSockets int    `json:"openSockets"`
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "action") == "ping" {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
		return
	}
	writeError(w, http.StatusBadRequest, "unknown action")
}

func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthEnvelope{Status: "ok", OpenSockets: h.sockets.Count()})
}
