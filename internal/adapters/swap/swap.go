// Package swap implements the SwapExecutor interface by composing the
// aggregator quote and swap endpoints with wallet signing and JSON-RPC
// transaction submission.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
	"triggerflow/internal/domain/models"
)

// Executor builds, signs and submits swap transactions
type Executor struct {
	quotes      ports.QuoteProvider
	builder     ports.TransactionBuilder
	rpcURL      string
	slippageBps int
	http        *http.Client
	logger      *slog.Logger
}

var _ ports.SwapExecutor = (*Executor)(nil)

// New creates a swap executor submitting to the configured RPC endpoint
func New(quotes ports.QuoteProvider, builder ports.TransactionBuilder, rpcCfg config.RPCConfig, quotesCfg config.QuotesConfig, logger *slog.Logger) *Executor {
	return &Executor{
		quotes:      quotes,
		builder:     builder,
		rpcURL:      rpcCfg.URL,
		slippageBps: quotesCfg.SlippageBps,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// ExecuteSwap runs the full pipeline for one order: fetch a fresh quote,
// build the transaction for the wallet, sign it locally and submit it.
// Each stage failure is classified so the stored failure reason stays
// meaningful to the user.
func (e *Executor) ExecuteSwap(ctx context.Context, req ports.SwapRequest) (models.ExecutionResult, error) {
	quote, err := e.quotes.Quote(ctx, ports.QuoteRequest{
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
		Amount:      req.Amount,
		SlippageBps: e.slippageBps,
	})
	if err != nil {
		return models.ExecutionResult{}, models.NewEngineError(models.ErrKindQuote, "fetching swap quote", err)
	}

	unsigned, err := e.builder.BuildSwapTransaction(ctx, quote, req.Wallet)
	if err != nil {
		return models.ExecutionResult{}, models.NewEngineError(models.ErrKindSwap, "building swap transaction", err)
	}

	signed, err := req.Signer.SignTransaction(unsigned)
	if err != nil {
		return models.ExecutionResult{}, models.NewEngineError(models.ErrKindSigning, "signing swap transaction", err)
	}

	signature, err := e.submit(ctx, signed)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	e.logger.Info("swap submitted",
		"wallet", req.Wallet,
		"input_token", req.InputToken,
		"output_token", req.OutputToken,
		"signature", signature)
	return models.ExecutionResult{Signature: signature}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// submit sends the signed transaction over JSON-RPC and returns its
// signature. RPC-level errors carry the node's message as the cause so it
// surfaces verbatim as the failure reason.
func (e *Executor) submit(ctx context.Context, signedTx string) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params:  []interface{}{signedTx, map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return "", models.NewEngineError(models.ErrKindSwap, "encoding rpc request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.rpcURL, bytes.NewReader(body))
	if err != nil {
		return "", models.NewEngineError(models.ErrKindSwap, "building rpc request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return "", models.NewEngineError(models.ErrKindSwap, "submitting transaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", models.NewEngineError(models.ErrKindSwap, "submitting transaction",
			fmt.Errorf("rpc returned %d: %s", resp.StatusCode, string(raw)))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", models.NewEngineError(models.ErrKindSwap, "decoding rpc response", err)
	}
	if rpcResp.Error != nil {
		return "", models.NewEngineError(models.ErrKindSwap, "submitting transaction", errors.New(rpcResp.Error.Message))
	}
	if rpcResp.Result == "" {
		return "", models.NewEngineError(models.ErrKindSwap, "submitting transaction", errors.New("rpc response missing signature"))
	}
	return rpcResp.Result, nil
}
