// Package jupiter implements the QuoteProvider interface against a
// Jupiter-style aggregation API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
	"triggerflow/internal/domain/models"
)

// Client implements the QuoteProvider and TransactionBuilder interfaces
type Client struct {
	baseURL     string
	slippageBps int
	decimals    map[string]int32
	http        *http.Client
}

// New creates a Jupiter API client
func New(cfg config.QuotesConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		slippageBps: cfg.SlippageBps,
		decimals:    cfg.TokenDecimals,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

var (
	_ ports.QuoteProvider      = (*Client)(nil)
	_ ports.TransactionBuilder = (*Client)(nil)
)

type priceResponse struct {
	Data map[string]struct {
		Price decimal.Decimal `json:"price"`
	} `json:"data"`
}

// Price returns the current unit price of a token
func (c *Client) Price(ctx context.Context, token string) (decimal.Decimal, error) {
	query := url.Values{"ids": {token}}
	return c.fetchPrice(ctx, token, query)
}

// PairPrice returns the direct exchange ratio of a pair via the price
// endpoint's vsToken parameter
func (c *Client) PairPrice(ctx context.Context, inputToken, outputToken string) (decimal.Decimal, error) {
	query := url.Values{"ids": {inputToken}, "vsToken": {outputToken}}
	return c.fetchPrice(ctx, inputToken, query)
}

func (c *Client) fetchPrice(ctx context.Context, token string, query url.Values) (decimal.Decimal, error) {
	var resp priceResponse
	if err := c.getJSON(ctx, "/price?"+query.Encode(), &resp); err != nil {
		return decimal.Decimal{}, err
	}

	entry, ok := resp.Data[token]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no price data for %s", token)
	}
	return entry.Price, nil
}

// Quote returns the opaque aggregator quote for a swap
func (c *Client) Quote(ctx context.Context, req ports.QuoteRequest) (json.RawMessage, error) {
	query := url.Values{
		"inputMint":   {req.InputToken},
		"outputMint":  {req.OutputToken},
		"amount":      {c.rawAmount(req.InputToken, req.Amount)},
		"slippageBps": {strconv.Itoa(req.SlippageBps)},
	}
	if req.SlippageBps == 0 {
		query.Set("slippageBps", strconv.Itoa(c.slippageBps))
	}

	var quote json.RawMessage
	if err := c.getJSON(ctx, "/quote?"+query.Encode(), &quote); err != nil {
		return nil, err
	}
	return quote, nil
}

type swapRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	WrapUnwrapSOL bool            `json:"wrapUnwrapSOL"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwapTransaction returns the base64 swap transaction for a quote
func (c *Client) BuildSwapTransaction(ctx context.Context, quoteResponse json.RawMessage, userPublicKey string) (string, error) {
	body, err := json.Marshal(swapRequest{
		QuoteResponse: quoteResponse,
		UserPublicKey: userPublicKey,
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp swapResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("swap response missing transaction")
	}
	return resp.SwapTransaction, nil
}

type chartPoint struct {
	Time  int64           `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// Chart returns a historical price series for a token
func (c *Client) Chart(ctx context.Context, token, interval string, limit int) ([]models.ChartPoint, error) {
	query := url.Values{
		"mint":     {token},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}

	var raw []chartPoint
	if err := c.getJSON(ctx, "/price/chart?"+query.Encode(), &raw); err != nil {
		return nil, err
	}

	points := make([]models.ChartPoint, len(raw))
	for i, p := range raw {
		points[i] = models.ChartPoint{Time: p.Time, Price: p.Price}
	}
	return points, nil
}

// rawAmount converts a UI amount to the integer base-unit amount the
// aggregator expects, using the configured decimals (default 9).
func (c *Client) rawAmount(token string, amount decimal.Decimal) string {
	decimalsCount := int32(9)
	if d, ok := c.decimals[token]; ok {
		decimalsCount = d
	}
	return amount.Shift(decimalsCount).Truncate(0).String()
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("quote provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("quote provider returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding quote provider response: %w", err)
	}
	return nil
}
