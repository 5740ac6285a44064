// Package local implements the WalletSigner interface with an ed25519
// keypair loaded from disk.
package local

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"triggerflow/internal/application/ports"
)

// Signer signs serialized transactions with a local keypair
type Signer struct {
	priv ed25519.PrivateKey
	pub  string
}

// New loads a base64-encoded ed25519 private key from the file
func New(keypairFile string) (*Signer, error) {
	data, err := os.ReadFile(keypairFile)
	if err != nil {
		return nil, fmt.Errorf("reading keypair file: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding keypair: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	priv := ed25519.PrivateKey(raw)
	pub := base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))

	return &Signer{priv: priv, pub: pub}, nil
}

var _ ports.WalletSigner = (*Signer)(nil)

// PublicKey returns the wallet address
func (s *Signer) PublicKey() string {
	return s.pub
}

// SignTransaction signs a single serialized transaction. The transaction
// layout is a compact signature count, the signature slots, then the
// message; the signature of the message is written into slot zero.
func (s *Signer) SignTransaction(tx string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(tx)
	if err != nil {
		return "", fmt.Errorf("decoding transaction: %w", err)
	}
	if len(raw) < 1 {
		return "", fmt.Errorf("empty transaction")
	}

	sigCount := int(raw[0])
	messageStart := 1 + sigCount*ed25519.SignatureSize
	if sigCount < 1 || sigCount > 127 || len(raw) <= messageStart {
		return "", fmt.Errorf("malformed transaction")
	}

	signature := ed25519.Sign(s.priv, raw[messageStart:])
	copy(raw[1:1+ed25519.SignatureSize], signature)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// SignAllTransactions signs a batch of serialized transactions
func (s *Signer) SignAllTransactions(txs []string) ([]string, error) {
	signed := make([]string, len(txs))
	for i, tx := range txs {
		out, err := s.SignTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("signing transaction %d: %w", i, err)
		}
		signed[i] = out
	}
	return signed, nil
}
