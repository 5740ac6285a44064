package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pricing"
	"triggerflow/internal/pubsub"
	"triggerflow/internal/trigger"
)

const (
	// DefaultExecuteTimeout bounds a single swap execution.
	DefaultExecuteTimeout = 60 * time.Second

	// DefaultStuckThreshold is how long an order may sit in EXECUTING
	// before a scan treats it as failed and makes it retryable.
	DefaultStuckThreshold = 5 * time.Minute
)

// Coordinator drives pending orders through the status state machine:
//
//	PENDING -> EXECUTING -> {EXECUTED | FAILED}
//	PENDING -> CANCELLED
//	FAILED  -> PENDING (explicit retry)
//
// The EXECUTING claim is an atomic conditional update at the store, so two
// overlapping scan cycles cannot both execute the same order.
type Coordinator struct {
	store    ports.OrderRepository
	cache    *pricing.Cache
	executor ports.SwapExecutor
	signer   ports.WalletSigner
	logger   *slog.Logger

	executeTimeout time.Duration
	stuckThreshold time.Duration

	updates  *pubsub.Topic[models.OrderUpdate]
	scanning atomic.Bool
	now      func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithExecuteTimeout overrides the per-swap execution timeout.
func WithExecuteTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.executeTimeout = d }
}

// WithStuckThreshold overrides how long EXECUTING may last before a scan
// fails the order.
func WithStuckThreshold(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.stuckThreshold = d }
}

// NewCoordinator creates a coordinator for the signer's wallet.
func NewCoordinator(store ports.OrderRepository, cache *pricing.Cache, executor ports.SwapExecutor, signer ports.WalletSigner, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:          store,
		cache:          cache,
		executor:       executor,
		signer:         signer,
		logger:         logger,
		executeTimeout: DefaultExecuteTimeout,
		stuckThreshold: DefaultStuckThreshold,
		updates:        pubsub.NewTopic[models.OrderUpdate](),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates returns the topic receiving an OrderUpdate after every status
// write, including the intermediate EXECUTING write.
func (c *Coordinator) Updates() *pubsub.Topic[models.OrderUpdate] {
	return c.updates
}

// Scan evaluates every pending order of the wallet against current prices
// and executes the ones whose trigger fires. A scan already in progress
// makes this call a no-op; per-order failures never abort the cycle.
func (c *Coordinator) Scan(ctx context.Context) {
	if !c.scanning.CompareAndSwap(false, true) {
		return
	}
	defer c.scanning.Store(false)

	wallet := c.signer.PublicKey()
	orders, err := c.store.ListByWallet(ctx, wallet)
	if err != nil {
		c.logger.Error("scan: listing orders failed", "wallet", wallet, "error", err)
		return
	}

	for _, order := range orders {
		switch order.Status {
		case models.StatusExecuting:
			c.sweepStuck(ctx, order)
		case models.StatusPending:
			c.evaluate(ctx, order)
		}
	}
}

// evaluate checks one pending order's trigger and executes it when it fires.
func (c *Coordinator) evaluate(ctx context.Context, order models.Order) {
	price, err := c.cache.PairPrice(ctx, order.InputToken, order.OutputToken)
	if err != nil {
		c.logger.Warn("scan: pair price unavailable",
			"order_id", order.ID,
			"pair", order.InputToken+"/"+order.OutputToken,
			"error", err)
		return
	}

	if !trigger.ShouldExecute(order.Kind, order.TriggerPrice, price) {
		return
	}

	if err := c.Execute(ctx, order.ID); err != nil {
		c.logger.Error("scan: execution failed", "order_id", order.ID, "error", err)
	}
}

// sweepStuck fails an order that has been EXECUTING beyond the threshold.
// The swap may still land on chain; the reason tells the user to check
// before retrying.
func (c *Coordinator) sweepStuck(ctx context.Context, order models.Order) {
	if c.now().Sub(order.StatusChangedAt) < c.stuckThreshold {
		return
	}

	ok, err := c.store.TransitionStatus(ctx, order.ID, models.StatusExecuting, models.StatusFailed, models.StatusFields{
		FailureReason: "execution timed out",
	})
	if err != nil {
		c.logger.Error("stuck sweep: status write failed", "order_id", order.ID, "error", err)
		return
	}
	if ok {
		c.logger.Warn("order stuck in EXECUTING, marked failed", "order_id", order.ID)
		c.publish(order.ID, models.StatusFailed, "")
	}
}

// Execute drives one order through EXECUTING to a terminal status. The
// EXECUTING claim is conditional on the order still being PENDING; a lost
// claim means another cycle owns the order and this call is a no-op.
func (c *Coordinator) Execute(ctx context.Context, orderID string) error {
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			// Nothing to update; abort silently.
			return nil
		}
		return models.NewEngineError(models.ErrKindStore, "reading order", err)
	}

	claimed, err := c.store.TransitionStatus(ctx, orderID, models.StatusPending, models.StatusExecuting, models.StatusFields{})
	if err != nil {
		return models.NewEngineError(models.ErrKindStore, "claiming order", err)
	}
	if !claimed {
		return nil
	}
	c.publish(orderID, models.StatusExecuting, "")

	execCtx, cancel := context.WithTimeout(ctx, c.executeTimeout)
	defer cancel()

	result, execErr := c.executor.ExecuteSwap(execCtx, ports.SwapRequest{
		InputToken:  order.InputToken,
		OutputToken: order.OutputToken,
		Amount:      order.InputAmount,
		Wallet:      order.Wallet,
		Signer:      c.signer,
	})

	if execErr != nil {
		reason := execErr.Error()
		var engineErr *models.EngineError
		if errors.As(execErr, &engineErr) {
			reason = engineErr.Message
			if engineErr.Cause != nil {
				reason = engineErr.Cause.Error()
			}
		}
		if err := c.store.UpdateStatus(ctx, orderID, models.StatusFailed, models.StatusFields{FailureReason: reason}); err != nil {
			return models.NewEngineError(models.ErrKindStore, "writing failed status", err)
		}
		c.publish(orderID, models.StatusFailed, "")
		c.logger.Warn("order execution failed", "order_id", orderID, "reason", reason)
		return nil
	}

	executedAt := c.now()
	if err := c.store.UpdateStatus(ctx, orderID, models.StatusExecuted, models.StatusFields{
		ExecutedAt:  &executedAt,
		TxSignature: result.Signature,
	}); err != nil {
		return models.NewEngineError(models.ErrKindStore, "writing executed status", err)
	}
	c.publish(orderID, models.StatusExecuted, result.Signature)
	c.logger.Info("order executed", "order_id", orderID, "signature", result.Signature)
	return nil
}

// Create validates and persists a draft, then immediately evaluates it so
// an already-satisfied trigger executes without waiting for the next scan.
func (c *Coordinator) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	draft.Wallet = c.signer.PublicKey()
	if err := draft.Validate(); err != nil {
		return models.Order{}, err
	}

	order, err := c.store.Create(ctx, draft)
	if err != nil {
		return models.Order{}, models.NewEngineError(models.ErrKindStore, "creating order", err)
	}
	c.publish(order.ID, models.StatusPending, "")

	c.evaluate(ctx, order)

	// Re-read so the caller sees any inline execution.
	current, err := c.store.Get(ctx, order.ID)
	if err != nil {
		return order, nil
	}
	return current, nil
}

// Cancel sets the order to CANCELLED. The prior status is deliberately not
// checked; last write wins against a concurrent execution.
func (c *Coordinator) Cancel(ctx context.Context, orderID string) error {
	if err := c.store.UpdateStatus(ctx, orderID, models.StatusCancelled, models.StatusFields{}); err != nil {
		return models.NewEngineError(models.ErrKindStore, "cancelling order", err)
	}
	c.publish(orderID, models.StatusCancelled, "")
	return nil
}

// Retry resets a FAILED order to PENDING, clearing the failure reason, and
// runs a scan so the order is reconsidered without waiting for the ticker.
func (c *Coordinator) Retry(ctx context.Context, orderID string) error {
	ok, err := c.store.TransitionStatus(ctx, orderID, models.StatusFailed, models.StatusPending, models.StatusFields{})
	if err != nil {
		return models.NewEngineError(models.ErrKindStore, "retrying order", err)
	}
	if !ok {
		// Not in FAILED; nothing to retry.
		return nil
	}
	c.publish(orderID, models.StatusPending, "")

	c.Scan(ctx)
	return nil
}

func (c *Coordinator) publish(orderID string, status models.OrderStatus, signature string) {
	c.updates.Publish(models.OrderUpdate{OrderID: orderID, Status: status, TxSignature: signature})
}
