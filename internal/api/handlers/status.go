package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/watcher"
)

// StatsProvider exposes a snapshot of the watcher's progress.
type StatsProvider interface {
	Stats() watcher.Stats
}

// StatusHandler reports the watcher state
type StatusHandler struct {
	stats  StatsProvider
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(stats StatsProvider, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		stats:  stats,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Watcher watcher.Stats `json:"watcher"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{Watcher: h.stats.Stats()}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
