package pricing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/concurrency"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pubsub"
)

// DefaultPollInterval is the polling fallback cadence.
const DefaultPollInterval = 5 * time.Second

// pollWorkers bounds concurrent provider fetches during one poll cycle.
const pollWorkers = 4

// Feed delivers a continuously updated price table for the set of tokens
// that have at least one listener. It prefers a push channel when one is
// connected and falls back to polling the quote provider. Listeners cannot
// distinguish push samples from poll samples.
type Feed struct {
	provider ports.QuoteProvider
	push     ports.PushSource
	cache    *Cache
	logger   *slog.Logger

	pollInterval time.Duration
	pool         *concurrency.WorkerPool

	prices     *pubsub.KeyedTopic[models.PriceSample]
	connection *pubsub.Topic[bool]

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithPollInterval overrides the polling cadence.
func WithPollInterval(interval time.Duration) FeedOption {
	return func(f *Feed) { f.pollInterval = interval }
}

// NewFeed creates a feed. push may be nil (polling only); cache may be nil.
func NewFeed(provider ports.QuoteProvider, push ports.PushSource, cache *Cache, logger *slog.Logger, opts ...FeedOption) *Feed {
	f := &Feed{
		provider:     provider,
		push:         push,
		cache:        cache,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		pool:         concurrency.NewWorkerPool(pollWorkers),
		prices:       pubsub.NewKeyedTopic[models.PriceSample](),
		connection:   pubsub.NewTopic[bool](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers a listener for one token's price updates. The first
// listener for a token starts tracking it; removing the last stops tracking.
func (f *Feed) Subscribe(token string, fn func(models.PriceSample)) func() {
	return f.prices.Subscribe(token, fn)
}

// SubscribeConnection registers a listener for push connection changes,
// notified synchronously on every change.
func (f *Feed) SubscribeConnection(fn func(bool)) func() {
	return f.connection.Subscribe(fn)
}

// IsConnected reports whether the push channel is currently connected.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Start begins delivering updates until Stop or context cancellation.
func (f *Feed) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	var pushCh <-chan models.PriceSample
	if f.push != nil {
		ch, err := f.push.Start(ctx)
		if err != nil {
			f.logger.Warn("push source unavailable, polling only", "source", f.push.Name(), "error", err)
		} else {
			pushCh = ch
		}
	}

	go f.run(ctx, pushCh)
	return nil
}

// Stop stops the feed and waits for the loop to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if f.push != nil {
		f.push.Stop()
	}
}

func (f *Feed) run(ctx context.Context, pushCh <-chan models.PriceSample) {
	defer close(f.done)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.setConnected(false)
			return

		case sample, ok := <-pushCh:
			if !ok {
				pushCh = nil
				f.setConnected(false)
				continue
			}
			f.setConnected(true)
			f.emit(sample)

		case <-ticker.C:
			// A connected push channel makes polling redundant.
			if f.push != nil {
				f.setConnected(f.push.IsConnected())
			}
			if f.IsConnected() {
				continue
			}
			f.pollOnce(ctx)
		}
	}
}

// pollOnce fetches every tracked token. A failure for one token must not
// abort the rest of the cycle; the previous cached price stands until the
// next successful poll.
func (f *Feed) pollOnce(ctx context.Context) {
	tracked := f.prices.Tracked()
	tasks := make([]func(context.Context), 0, len(tracked))
	for _, token := range tracked {
		token := token
		tasks = append(tasks, func(ctx context.Context) {
			price, err := f.provider.Price(ctx, token)
			if err != nil {
				f.logger.Warn("poll failed for token", "token", token, "error", err)
				return
			}
			f.emit(models.PriceSample{Token: token, Price: price, Timestamp: time.Now()})
		})
	}
	f.pool.Run(ctx, tasks)
}

func (f *Feed) emit(sample models.PriceSample) {
	if f.cache != nil {
		f.cache.Observe(sample)
	}
	f.prices.Publish(sample.Token, sample)
}

func (f *Feed) setConnected(connected bool) {
	f.mu.Lock()
	changed := f.connected != connected
	f.connected = connected
	f.mu.Unlock()

	if changed {
		f.logger.Info("push connection status changed", "connected", connected)
		f.connection.Publish(connected)
	}
}
