package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"triggerflow/internal/adapters/web/handlers"
	"triggerflow/internal/application/ports"
	"triggerflow/internal/engine"
	"triggerflow/internal/pricing"
)

// Server represents the HTTP server
type Server struct {
	port   int
	engine *engine.Engine
	cache  *pricing.Cache
	quotes ports.QuoteProvider
	logger *slog.Logger

	server      *http.Server
	broadcaster *handlers.UpdatesBroadcaster
	unsubscribe func()
}

// NewServer creates a new HTTP server
func NewServer(port int, eng *engine.Engine, cache *pricing.Cache, quotes ports.QuoteProvider, logger *slog.Logger) *Server {
	return &Server{
		port:   port,
		engine: eng,
		cache:  cache,
		quotes: quotes,
		logger: logger,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Initialize handlers
	ordersHandler := handlers.NewOrdersHandler(s.engine, s.logger)
	pricesHandler := handlers.NewPricesHandler(s.cache, s.quotes, s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)
	statusHandler := handlers.NewStatusHandler(s.engine, s.logger)
	s.broadcaster = handlers.NewUpdatesBroadcaster(s.logger)

	// Every status write flows to connected websocket clients.
	s.unsubscribe = s.engine.Updates().Subscribe(s.broadcaster.Broadcast)

	// Register routes
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Orders request", "method", r.Method, "path", r.URL.Path)
		ordersHandler.Handle(w, r)
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Order action request", "method", r.Method, "path", r.URL.Path)
		ordersHandler.HandleAction(w, r)
	})

	mux.HandleFunc("/prices/", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Prices request", "method", r.Method, "path", r.URL.Path)
		pricesHandler.Handle(w, r)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Health request", "method", r.Method, "path", r.URL.Path)
		healthHandler.Handle(w, r)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Status request", "method", r.Method, "path", r.URL.Path)
		statusHandler.Handle(w, r)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Websocket request", "remote", r.RemoteAddr)
		s.broadcaster.Handle(w, r)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Info("Starting HTTP server", "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
