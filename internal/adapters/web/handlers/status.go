package handlers

import (
	"log/slog"
	"net/http"

	"triggerflow/internal/domain/models"
	"triggerflow/internal/engine"
)

// StatusHandler handles status requests
type StatusHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(eng *engine.Engine, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		engine: eng,
		logger: logger,
	}
}

// Handle reports the engine wallet, feed connectivity and order counts
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orders, err := h.engine.Orders(r.Context())
	if err != nil {
		h.logger.Error("Status order listing failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	counts := map[models.OrderStatus]int{}
	for _, order := range orders {
		counts[order.Status]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"wallet":         h.engine.Wallet(),
		"feed_connected": h.engine.FeedConnected(),
		"orders":         counts,
	})
}
