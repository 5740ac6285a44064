package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"triggerflow/internal/adapters/orderstore/memory"
	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pricing"
)

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct{}

func (fakeSigner) PublicKey() string { return testWallet }

func (fakeSigner) SignTransaction(tx string) (string, error) { return "signed:" + tx, nil }

func (fakeSigner) SignAllTransactions(txs []string) ([]string, error) {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = "signed:" + tx
	}
	return out, nil
}

// fakeExecutor records swap invocations and can be scripted to fail.
type fakeExecutor struct {
	mu        sync.Mutex
	calls     int
	err       error
	signature string
}

func (e *fakeExecutor) ExecuteSwap(ctx context.Context, req ports.SwapRequest) (models.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return models.ExecutionResult{}, e.err
	}
	sig := e.signature
	if sig == "" {
		sig = "tx-signature"
	}
	return models.ExecutionResult{Signature: sig}, nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeQuotes serves only the direct pair endpoint, keyed by pair.
type fakeQuotes struct {
	mu    sync.Mutex
	pairs map[string]decimal.Decimal
	errs  map[string]error
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		pairs: make(map[string]decimal.Decimal),
		errs:  make(map[string]error),
	}
}

func (q *fakeQuotes) setPair(in, out, price string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pairs[in+"/"+out] = decimal.RequireFromString(price)
}

func (q *fakeQuotes) Price(ctx context.Context, token string) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("single prices not served")
}

func (q *fakeQuotes) PairPrice(ctx context.Context, in, out string) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.errs[in+"/"+out]; err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := q.pairs[in+"/"+out]
	if !ok {
		return decimal.Decimal{}, errors.New("unknown pair")
	}
	return price, nil
}

func (q *fakeQuotes) Quote(ctx context.Context, req ports.QuoteRequest) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (q *fakeQuotes) Chart(ctx context.Context, token, interval string, limit int) ([]models.ChartPoint, error) {
	return nil, nil
}

type fixture struct {
	store    *memory.Store
	quotes   *fakeQuotes
	executor *fakeExecutor
	coord    *Coordinator
	clock    *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Now()}
	store := memory.New()
	quotes := newFakeQuotes()
	cache := pricing.NewCache(quotes, nil, testLogger(), pricing.WithClock(clock.Now))
	executor := &fakeExecutor{}
	coord := NewCoordinator(store, cache, executor, fakeSigner{}, testLogger())
	return &fixture{store: store, quotes: quotes, executor: executor, coord: coord, clock: clock}
}

func (f *fixture) recordUpdates() func() []models.OrderUpdate {
	var mu sync.Mutex
	var updates []models.OrderUpdate
	f.coord.Updates().Subscribe(func(u models.OrderUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})
	return func() []models.OrderUpdate {
		mu.Lock()
		defer mu.Unlock()
		out := make([]models.OrderUpdate, len(updates))
		copy(out, updates)
		return out
	}
}

func limitDraft(amount, trigger string) models.OrderDraft {
	return models.OrderDraft{
		InputToken:   "SOL",
		OutputToken:  "USDC",
		InputAmount:  decimal.RequireFromString(amount),
		Kind:         models.KindLimit,
		TriggerPrice: decimal.RequireFromString(trigger),
	}
}

func TestCreateImmediateFire(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "150")
	snapshot := f.recordUpdates()

	order, err := f.coord.Create(context.Background(), limitDraft("1", "160"))
	require.NoError(t, err)

	require.Equal(t, models.StatusExecuted, order.Status)
	require.NotEmpty(t, order.TxSignature)
	require.NotNil(t, order.ExecutedAt)
	require.Equal(t, 1, f.executor.callCount())

	// The full transition sequence is observable, EXECUTING included.
	var statuses []models.OrderStatus
	for _, u := range snapshot() {
		require.Equal(t, order.ID, u.OrderID)
		statuses = append(statuses, u.Status)
	}
	require.Equal(t, []models.OrderStatus{
		models.StatusPending,
		models.StatusExecuting,
		models.StatusExecuted,
	}, statuses)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Create(ctx, limitDraft("0", "160"))
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = f.coord.Create(ctx, limitDraft("1", "0"))
	require.ErrorIs(t, err, models.ErrInvalidTrigger)

	same := limitDraft("1", "160")
	same.OutputToken = same.InputToken
	_, err = f.coord.Create(ctx, same)
	require.ErrorIs(t, err, models.ErrSameToken)

	bad := limitDraft("1", "160")
	bad.Kind = models.OrderKind("TRAILING")
	_, err = f.coord.Create(ctx, bad)
	require.ErrorIs(t, err, models.ErrInvalidKind)

	require.Equal(t, 0, f.executor.callCount())
}

func TestStopLossDeferredFire(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "150")
	ctx := context.Background()

	draft := limitDraft("2", "140")
	draft.Kind = models.KindStopLoss
	order, err := f.coord.Create(ctx, draft)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, order.Status)
	require.Equal(t, 0, f.executor.callCount())

	// Price drops below the trigger after the cached quote expires.
	f.clock.Advance(31 * time.Second)
	f.quotes.setPair("SOL", "USDC", "139")
	f.coord.Scan(ctx)

	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, got.Status)
	require.Equal(t, 1, f.executor.callCount())
}

func TestSwapFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "150")
	f.executor.err = errors.New("slippage exceeded")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, order.Status)
	require.Equal(t, "slippage exceeded", order.FailureReason)

	// Retry resets to PENDING, clears the reason and re-evaluates at once.
	f.executor.mu.Lock()
	f.executor.err = nil
	f.executor.mu.Unlock()

	require.NoError(t, f.coord.Retry(ctx, order.ID))

	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, got.Status)
	require.Empty(t, got.FailureReason)
	require.Equal(t, 2, f.executor.callCount())
}

func TestRetryIgnoresNonFailedOrder(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, order.Status)

	require.NoError(t, f.coord.Retry(ctx, order.ID))
	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)
}

func TestCancelStopsScans(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, order.Status)

	require.NoError(t, f.coord.Cancel(ctx, order.ID))
	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, got.Status)

	// Even when the price crosses the trigger, a cancelled order is dead.
	f.clock.Advance(31 * time.Second)
	f.quotes.setPair("SOL", "USDC", "150")
	f.coord.Scan(ctx)
	f.coord.Scan(ctx)

	require.Equal(t, 0, f.executor.callCount())
	got, err = f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, got.Status)
}

func TestScanIdempotence(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "150")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, order.Status)
	require.Equal(t, 1, f.executor.callCount())

	// Back-to-back scans with no price change must not re-execute.
	f.coord.Scan(ctx)
	f.coord.Scan(ctx)
	require.Equal(t, 1, f.executor.callCount())
}

func TestExecuteMissingOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coord.Execute(context.Background(), "no-such-order"))
	require.Equal(t, 0, f.executor.callCount())
}

func TestExecuteClaimRefusedWhenNotPending(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)

	require.NoError(t, f.store.UpdateStatus(ctx, order.ID, models.StatusExecuting, models.StatusFields{}))

	require.NoError(t, f.coord.Execute(ctx, order.ID))
	require.Equal(t, 0, f.executor.callCount())
}

func TestScanSkipsWhileScanInProgress(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)

	f.clock.Advance(31 * time.Second)
	f.quotes.setPair("SOL", "USDC", "150")

	// Simulate an in-flight cycle holding the guard.
	f.coord.scanning.Store(true)
	f.coord.Scan(ctx)
	require.Equal(t, 0, f.executor.callCount())

	f.coord.scanning.Store(false)
	f.coord.Scan(ctx)
	require.Equal(t, 1, f.executor.callCount())

	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, got.Status)
}

func TestScanIsolatesPriceFailures(t *testing.T) {
	f := newFixture(t)
	f.quotes.errs["SOL/USDC"] = errors.New("upstream down")
	f.quotes.setPair("BONK", "USDC", "0.00002")
	ctx := context.Background()

	bad, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)

	goodDraft := models.OrderDraft{
		InputToken:   "BONK",
		OutputToken:  "USDC",
		InputAmount:  decimal.RequireFromString("1000"),
		Kind:         models.KindLimit,
		TriggerPrice: decimal.RequireFromString("0.00003"),
	}
	good, err := f.coord.Create(ctx, goodDraft)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, good.Status)

	f.coord.Scan(ctx)

	gotBad, err := f.store.Get(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, gotBad.Status)
}

func TestStuckExecutingSweep(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()
	snapshot := f.recordUpdates()

	order, err := f.coord.Create(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateStatus(ctx, order.ID, models.StatusExecuting, models.StatusFields{}))

	// Orders EXECUTING for longer than the threshold are failed by a scan.
	f.coord.now = func() time.Time { return time.Now().Add(DefaultStuckThreshold + time.Minute) }
	f.coord.Scan(ctx)

	got, err := f.store.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, "execution timed out", got.FailureReason)

	updates := snapshot()
	require.Equal(t, models.StatusFailed, updates[len(updates)-1].Status)
}

func TestExecutorTimeoutMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "150")
	f.coord.executeTimeout = 20 * time.Millisecond

	slow := &slowExecutor{delay: 200 * time.Millisecond}
	f.coord.executor = slow

	order, err := f.coord.Create(context.Background(), limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, order.Status)
	require.NotEmpty(t, order.FailureReason)
}

type slowExecutor struct {
	delay time.Duration
}

func (e *slowExecutor) ExecuteSwap(ctx context.Context, req ports.SwapRequest) (models.ExecutionResult, error) {
	select {
	case <-time.After(e.delay):
		return models.ExecutionResult{Signature: "late"}, nil
	case <-ctx.Done():
		return models.ExecutionResult{}, ctx.Err()
	}
}
