package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/pricing"
)

// PricesHandler handles price lookup requests
type PricesHandler struct {
	cache  *pricing.Cache
	quotes ports.QuoteProvider
	logger *slog.Logger
}

// NewPricesHandler creates a new prices handler
func NewPricesHandler(cache *pricing.Cache, quotes ports.QuoteProvider, logger *slog.Logger) *PricesHandler {
	return &PricesHandler{
		cache:  cache,
		quotes: quotes,
		logger: logger,
	}
}

// Handle handles /prices/{token} and /prices/chart/{token}
func (h *PricesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/prices/")
	parts := strings.Split(path, "/")

	if len(parts) == 2 && parts[0] == "chart" {
		h.chart(w, r, parts[1])
		return
	}
	if len(parts) != 1 || parts[0] == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	h.price(w, r, parts[0])
}

func (h *PricesHandler) price(w http.ResponseWriter, r *http.Request, token string) {
	// A vs query turns the lookup into a pair quote.
	if vs := r.URL.Query().Get("vs"); vs != "" {
		price, err := h.cache.PairPrice(r.Context(), token, vs)
		if err != nil {
			h.logger.Error("Pair price lookup failed", "input_token", token, "output_token", vs, "error", err)
			http.Error(w, "Price unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"input_token":  token,
			"output_token": vs,
			"price":        price,
		})
		return
	}

	price := h.cache.Price(r.Context(), token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"price": price,
	})
}

func (h *PricesHandler) chart(w http.ResponseWriter, r *http.Request, token string) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "15m"
	}

	limit := 96
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	points, err := h.quotes.Chart(r.Context(), token, interval, limit)
	if err != nil {
		h.logger.Error("Chart lookup failed", "token", token, "error", err)
		http.Error(w, "Chart unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"interval": interval,
		"points":   points,
	})
}
