package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind represents the trigger semantics of a conditional order
type OrderKind string

const (
	KindLimit      OrderKind = "LIMIT"
	KindStopLoss   OrderKind = "STOP_LOSS"
	KindTakeProfit OrderKind = "TAKE_PROFIT"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusExecuting OrderStatus = "EXECUTING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Order represents a conditional swap order owned by a wallet.
// The trigger price is denominated output-per-input.
type Order struct {
	ID              string          `json:"id"`
	Wallet          string          `json:"wallet"`
	InputToken      string          `json:"input_token"`
	OutputToken     string          `json:"output_token"`
	InputAmount     decimal.Decimal `json:"input_amount"`
	Kind            OrderKind       `json:"kind"`
	TriggerPrice    decimal.Decimal `json:"trigger_price"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	StatusChangedAt time.Time       `json:"status_changed_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
	TxSignature     string          `json:"tx_signature,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
}

// OrderDraft is the caller-supplied part of a new order; the store assigns
// identity, status and timestamps.
type OrderDraft struct {
	Wallet       string          `json:"wallet"`
	InputToken   string          `json:"input_token"`
	OutputToken  string          `json:"output_token"`
	InputAmount  decimal.Decimal `json:"input_amount"`
	Kind         OrderKind       `json:"kind"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

var (
	ErrInvalidAmount  = errors.New("input amount must be positive")
	ErrInvalidTrigger = errors.New("trigger price must be positive")
	ErrSameToken      = errors.New("input and output token must differ")
	ErrInvalidKind    = errors.New("unknown order kind")
)

// Validate checks the draft invariants before it reaches the store.
func (d OrderDraft) Validate() error {
	if !d.InputAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if !d.TriggerPrice.IsPositive() {
		return ErrInvalidTrigger
	}
	if d.InputToken == d.OutputToken {
		return ErrSameToken
	}
	switch d.Kind {
	case KindLimit, KindStopLoss, KindTakeProfit:
	default:
		return ErrInvalidKind
	}
	return nil
}

// StatusFields carries the optional columns written together with a status.
type StatusFields struct {
	ExecutedAt    *time.Time
	TxSignature   string
	FailureReason string
}

// OrderUpdate is emitted to observers after every status write.
type OrderUpdate struct {
	OrderID     string      `json:"order_id"`
	Status      OrderStatus `json:"status"`
	TxSignature string      `json:"tx_signature,omitempty"`
}

// ExecutionResult is returned by the swap executor on success.
type ExecutionResult struct {
	Signature string `json:"signature"`
}
