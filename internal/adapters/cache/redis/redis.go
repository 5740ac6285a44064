package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pricing"
)

// Adapter implements the QuoteCache interface for Redis, sharing pair
// quotes across engine instances
type Adapter struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis adapter
func New(cfg config.CacheConfig) (ports.QuoteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Adapter{
		client: client,
		ttl:    pricing.DefaultTTL,
	}, nil
}

func pairCacheKey(inputToken, outputToken string) string {
	return fmt.Sprintf("pair:%s:%s", inputToken, outputToken)
}

// GetPair returns the cached quote for a pair, or nil when absent
func (a *Adapter) GetPair(ctx context.Context, inputToken, outputToken string) (*models.PairQuote, error) {
	data, err := a.client.Get(ctx, pairCacheKey(inputToken, outputToken)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var quote models.PairQuote
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		return nil, err
	}

	return &quote, nil
}

// SetPair stores a quote for a pair; the Redis TTL matches the cache TTL so
// expired entries disappear on their own
func (a *Adapter) SetPair(ctx context.Context, quote models.PairQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return err
	}

	key := pairCacheKey(quote.InputToken, quote.OutputToken)
	return a.client.Set(ctx, key, data, a.ttl).Err()
}

// Close closes the cache connection
func (a *Adapter) Close() error {
	return a.client.Close()
}
