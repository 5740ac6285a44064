package ports

import (
	"context"
	"errors"

	"triggerflow/internal/domain/models"
)

// ErrOrderNotFound is returned by Get when no order exists for the id.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository defines the interface for durable order storage
type OrderRepository interface {
	// Create persists a draft with status PENDING and a store-assigned id
	// and creation timestamp, returning the stored order
	Create(ctx context.Context, draft models.OrderDraft) (models.Order, error)

	// Get returns the order for the id, or ErrOrderNotFound
	Get(ctx context.Context, id string) (models.Order, error)

	// ListByWallet returns all orders owned by the wallet
	ListByWallet(ctx context.Context, wallet string) ([]models.Order, error)

	// UpdateStatus unconditionally writes the status and associated fields
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, fields models.StatusFields) error

	// TransitionStatus atomically writes the status only if the current
	// status equals from; it reports whether the write happened
	TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, fields models.StatusFields) (bool, error)

	// Subscribe registers a listener receiving the full order set for the
	// wallet after every visible mutation; the returned func unsubscribes
	Subscribe(wallet string, fn func([]models.Order)) func()

	// Close closes the storage connection
	Close() error
}
