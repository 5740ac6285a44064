package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.QuotesConfig{
		BaseURL:       server.URL,
		SlippageBps:   50,
		TokenDecimals: map[string]int32{"SOL": 9, "USDC": 6},
	})
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price", r.URL.Path)
		require.Equal(t, "SOL", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"data":{"SOL":{"price":151.23}}}`))
	})

	price, err := client.Price(context.Background(), "SOL")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("151.23")))
}

func TestPairPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SOL", r.URL.Query().Get("ids"))
		require.Equal(t, "USDC", r.URL.Query().Get("vsToken"))
		w.Write([]byte(`{"data":{"SOL":{"price":150.5}}}`))
	})

	price, err := client.PairPrice(context.Background(), "SOL", "USDC")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("150.5")))
}

func TestPriceMissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	_, err := client.Price(context.Background(), "SOL")
	require.ErrorContains(t, err, "no price data")
}

func TestPriceUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Price(context.Background(), "SOL")
	require.ErrorContains(t, err, "429")
}

func TestQuoteConvertsAmountToBaseUnits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "SOL", q.Get("inputMint"))
		require.Equal(t, "USDC", q.Get("outputMint"))
		// 1.5 SOL at 9 decimals.
		require.Equal(t, "1500000000", q.Get("amount"))
		require.Equal(t, "50", q.Get("slippageBps"))
		w.Write([]byte(`{"outAmount":"225000000"}`))
	})

	quote, err := client.Quote(context.Background(), ports.QuoteRequest{
		InputToken:  "SOL",
		OutputToken: "USDC",
		Amount:      decimal.RequireFromString("1.5"),
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"outAmount":"225000000"}`, string(quote))
}

func TestBuildSwapTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body, "quoteResponse")
		require.Contains(t, body, "userPublicKey")

		w.Write([]byte(`{"swapTransaction":"dGVzdA=="}`))
	})

	tx, err := client.BuildSwapTransaction(context.Background(), json.RawMessage(`{}`), "wallet-pubkey")
	require.NoError(t, err)
	require.Equal(t, "dGVzdA==", tx)
}

func TestChart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price/chart", r.URL.Path)
		require.Equal(t, "SOL", r.URL.Query().Get("mint"))
		require.Equal(t, "15m", r.URL.Query().Get("interval"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"time":1700000000,"price":150},{"time":1700000900,"price":151}]`))
	})

	points, err := client.Chart(context.Background(), "SOL", "15m", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, int64(1700000000), points[0].Time)
	require.True(t, points[1].Price.Equal(decimal.RequireFromString("151")))
}
