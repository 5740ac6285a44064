package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pricing"
	"triggerflow/internal/pubsub"
)

// DefaultScanInterval is the cadence of the periodic scan cycle.
const DefaultScanInterval = 10 * time.Second

// Engine is the composition root of the order pipeline: it owns the scan
// ticker, the price feed lifecycle and the coordinator, and exposes the
// public create/cancel/retry operations.
type Engine struct {
	store       ports.OrderRepository
	feed        *pricing.Feed
	coordinator *Coordinator
	logger      *slog.Logger

	scanInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScanInterval overrides the scan cadence.
func WithScanInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.scanInterval = d }
}

// New creates an engine. The feed may be nil when price delivery is handled
// externally (tests drive the cache directly).
func New(store ports.OrderRepository, feed *pricing.Feed, coordinator *Coordinator, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		feed:         feed,
		coordinator:  coordinator,
		logger:       logger,
		scanInterval: DefaultScanInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the feed and the periodic scan loop.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	if e.feed != nil {
		if err := e.feed.Start(ctx); err != nil {
			cancel()
			return err
		}
	}

	go e.run(ctx)
	e.logger.Info("order engine started", "scan_interval", e.scanInterval)
	return nil
}

// Stop halts the scan loop and the feed.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if e.feed != nil {
		e.feed.Stop()
	}
	e.logger.Info("order engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.coordinator.Scan(ctx)
		}
	}
}

// CreateOrder validates and persists a draft and evaluates it immediately.
func (e *Engine) CreateOrder(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	return e.coordinator.Create(ctx, draft)
}

// CancelOrder cancels an order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return e.coordinator.Cancel(ctx, orderID)
}

// RetryOrder resets a failed order and rescans.
func (e *Engine) RetryOrder(ctx context.Context, orderID string) error {
	return e.coordinator.Retry(ctx, orderID)
}

// Orders returns the wallet's current order set.
func (e *Engine) Orders(ctx context.Context) ([]models.Order, error) {
	return e.store.ListByWallet(ctx, e.coordinator.signer.PublicKey())
}

// SubscribeOrders forwards the store's live order subscription for the
// engine wallet.
func (e *Engine) SubscribeOrders(fn func([]models.Order)) func() {
	return e.store.Subscribe(e.coordinator.signer.PublicKey(), fn)
}

// Updates returns the order-update notification topic.
func (e *Engine) Updates() *pubsub.Topic[models.OrderUpdate] {
	return e.coordinator.Updates()
}

// Wallet returns the engine's wallet address.
func (e *Engine) Wallet() string {
	return e.coordinator.signer.PublicKey()
}

// FeedConnected reports whether the push price channel is connected.
func (e *Engine) FeedConnected() bool {
	if e.feed == nil {
		return false
	}
	return e.feed.IsConnected()
}
