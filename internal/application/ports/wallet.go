package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"triggerflow/internal/domain/models"
)

// WalletSigner defines the signing capability of a connected wallet.
// Transactions are opaque base64 payloads; the signer never interprets them.
type WalletSigner interface {
	// PublicKey returns the wallet address
	PublicKey() string

	// SignTransaction signs a single serialized transaction
	SignTransaction(tx string) (string, error)

	// SignAllTransactions signs a batch of serialized transactions
	SignAllTransactions(txs []string) ([]string, error)
}

// SwapRequest describes one swap to execute on behalf of a wallet.
type SwapRequest struct {
	InputToken  string
	OutputToken string
	Amount      decimal.Decimal
	Wallet      string
	Signer      WalletSigner
}

// SwapExecutor defines the capability that builds, signs and submits the
// on-chain exchange transaction
type SwapExecutor interface {
	// ExecuteSwap performs the swap and returns the transaction signature;
	// a non-nil error means the order must be marked FAILED
	ExecuteSwap(ctx context.Context, req SwapRequest) (models.ExecutionResult, error)
}
