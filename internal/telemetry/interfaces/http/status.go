package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	telemetryapp "groundstation-safety/internal/telemetry/application"
)

// StatusReader answers signal status queries.
type StatusReader interface {
	Status(name string) telemetryapp.Status
}

// StatusHandler serves signal classification.
type StatusHandler struct {
	health StatusReader
}

// NewStatusHandler constructs a status handler.
func NewStatusHandler(health StatusReader) (*StatusHandler, error) {
	if health == nil {
		return nil, errors.New("signal status: nil health service")
	}
	return &StatusHandler{health: health}, nil
}

// ServeHTTP handles GET /api/v1/signals/{name}/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/signals/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := h.health.Status(parts[0])
	if !status.Known {
		http.Error(w, "unknown signal", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
