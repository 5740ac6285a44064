package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triggerflow/internal/domain/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEnginePeriodicScanExecutes(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	eng := New(f.store, nil, f.coord, testLogger(), WithScanInterval(10*time.Millisecond))

	order, err := eng.CreateOrder(ctx, limitDraft("1", "160"))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, order.Status)

	require.NoError(t, eng.Start(ctx))
	defer eng.Stop()

	// The ticker picks the order up once the price crosses the trigger.
	f.clock.Advance(31 * time.Second)
	f.quotes.setPair("SOL", "USDC", "150")

	waitFor(t, func() bool {
		got, err := f.store.Get(ctx, order.ID)
		return err == nil && got.Status == models.StatusExecuted
	})
	require.Equal(t, 1, f.executor.callCount())
}

func TestEngineOrdersAndSubscription(t *testing.T) {
	f := newFixture(t)
	f.quotes.setPair("SOL", "USDC", "200")
	ctx := context.Background()

	eng := New(f.store, nil, f.coord, testLogger())
	require.Equal(t, testWallet, eng.Wallet())

	var mu sync.Mutex
	var lastSet []models.Order
	unsub := eng.SubscribeOrders(func(orders []models.Order) {
		mu.Lock()
		defer mu.Unlock()
		lastSet = orders
	})
	defer unsub()

	order, err := eng.CreateOrder(ctx, limitDraft("1", "160"))
	require.NoError(t, err)

	orders, err := eng.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, order.ID, orders[0].ID)

	mu.Lock()
	require.Len(t, lastSet, 1)
	mu.Unlock()

	require.NoError(t, eng.CancelOrder(ctx, order.ID))
	mu.Lock()
	require.Equal(t, models.StatusCancelled, lastSet[0].Status)
	mu.Unlock()
}

func TestEngineStartStop(t *testing.T) {
	f := newFixture(t)
	eng := New(f.store, nil, f.coord, testLogger(), WithScanInterval(5*time.Millisecond))

	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	eng.Stop()

	// Stop with no Start pending is safe to call again.
	eng.Stop()
	require.False(t, eng.FeedConnected())
}
