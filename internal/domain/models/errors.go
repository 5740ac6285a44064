package models

import "fmt"

// ErrorKind classifies engine failures for logging and recovery decisions.
type ErrorKind string

const (
	ErrKindPriceFetch ErrorKind = "price_fetch"
	ErrKindQuote      ErrorKind = "quote"
	ErrKindSigning    ErrorKind = "signing"
	ErrKindSwap       ErrorKind = "swap"
	ErrKindStore      ErrorKind = "store"
)

// EngineError is a structured failure carried across engine boundaries
// instead of a bare string, so the kind survives wrapping.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError builds an EngineError wrapping cause (cause may be nil).
func NewEngineError(kind ErrorKind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Cause: cause}
}
