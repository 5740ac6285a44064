package ports

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"triggerflow/internal/domain/models"
)

// QuoteRequest describes a swap quote lookup against the aggregator.
type QuoteRequest struct {
	InputToken  string
	OutputToken string
	Amount      decimal.Decimal
	SlippageBps int
}

// QuoteProvider defines the interface for the price/quote aggregation API
type QuoteProvider interface {
	// Price returns the current unit price of a token in the common
	// reference unit
	Price(ctx context.Context, token string) (decimal.Decimal, error)

	// PairPrice returns the direct exchange ratio for an ordered pair
	PairPrice(ctx context.Context, inputToken, outputToken string) (decimal.Decimal, error)

	// Quote returns an opaque aggregator quote, passed through to swap
	Quote(ctx context.Context, req QuoteRequest) (json.RawMessage, error)

	// Chart returns a historical price series for a token
	Chart(ctx context.Context, token, interval string, limit int) ([]models.ChartPoint, error)
}

// TransactionBuilder turns an aggregator quote into a serialized swap
// transaction ready for wallet signing
type TransactionBuilder interface {
	// BuildSwapTransaction returns the base64 swap transaction for the
	// quote, built for the given public key
	BuildSwapTransaction(ctx context.Context, quoteResponse json.RawMessage, userPublicKey string) (string, error)
}

// QuoteCache is an optional shared cache tier for pair quotes, consulted
// before the provider is called and populated after successful lookups
type QuoteCache interface {
	// GetPair returns the cached quote for a pair, or nil when absent
	GetPair(ctx context.Context, inputToken, outputToken string) (*models.PairQuote, error)

	// SetPair stores a quote for a pair with the cache TTL
	SetPair(ctx context.Context, quote models.PairQuote) error

	// Close closes the cache connection
	Close() error
}
