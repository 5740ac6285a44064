package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/engine"
)

// OrdersHandler handles order lifecycle requests
type OrdersHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewOrdersHandler creates a new orders handler
func NewOrdersHandler(eng *engine.Engine, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		engine: eng,
		logger: logger,
	}
}

// Handle handles the order collection: POST creates, GET lists
func (h *OrdersHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleAction handles /orders/{id}/cancel and /orders/{id}/retry
func (h *OrdersHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	orderID, action := parts[0], parts[1]

	var err error
	switch action {
	case "cancel":
		err = h.engine.CancelOrder(r.Context(), orderID)
	case "retry":
		err = h.engine.RetryOrder(r.Context(), orderID)
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Order action failed", "order_id", orderID, "action", action, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "success",
		"order_id": orderID,
		"action":   action,
	})
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var draft models.OrderDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.engine.CreateOrder(r.Context(), draft)
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Order creation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.Orders(r.Context())
	if err != nil {
		h.logger.Error("Listing orders failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidAmount) ||
		errors.Is(err, models.ErrInvalidTrigger) ||
		errors.Is(err, models.ErrSameToken) ||
		errors.Is(err, models.ErrInvalidKind)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
