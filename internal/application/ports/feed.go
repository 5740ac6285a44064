package ports

import (
	"context"

	"triggerflow/internal/domain/models"
)

// PushSource defines the interface for a push price channel
type PushSource interface {
	// Start begins streaming price samples
	Start(ctx context.Context) (<-chan models.PriceSample, error)

	// Stop stops streaming
	Stop() error

	// IsConnected returns connection status
	IsConnected() bool

	// Name returns the source name
	Name() string
}
