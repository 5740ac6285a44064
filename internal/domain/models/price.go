package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample represents one observation of a token price in the common
// reference unit. Samples are ephemeral; a newer sample for the same token
// supersedes an older one.
type PriceSample struct {
	Token     string          `json:"token"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PairQuote represents a cached exchange ratio for an ordered token pair,
// either derived from two unit prices or fetched directly.
type PairQuote struct {
	InputToken  string          `json:"input_token"`
	OutputToken string          `json:"output_token"`
	Price       decimal.Decimal `json:"price"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Fresh reports whether the quote is still usable at now under the given TTL.
// Expired quotes must be treated as absent.
func (q PairQuote) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(q.FetchedAt) < ttl
}

// ChartPoint is one entry of a historical price series.
type ChartPoint struct {
	Time  int64           `json:"time"`
	Price decimal.Decimal `json:"price"`
}
