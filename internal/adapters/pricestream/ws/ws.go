package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
)

// Adapter implements the PushSource interface over a websocket price stream
type Adapter struct {
	url string

	mu        sync.Mutex
	connected bool
}

// tick is the wire shape of one stream message
type tick struct {
	Token     string          `json:"token"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// New creates a new websocket push source
func New(url string) ports.PushSource {
	return &Adapter{url: url}
}

// Start begins streaming price samples. The returned channel stays open
// across reconnects and closes when the context is cancelled.
func (a *Adapter) Start(ctx context.Context) (<-chan models.PriceSample, error) {
	sampleCh := make(chan models.PriceSample, 1000)

	go a.connectLoop(ctx, sampleCh)

	return sampleCh, nil
}

// Stop stops streaming
func (a *Adapter) Stop() error {
	a.setConnected(false)
	return nil
}

// IsConnected returns connection status
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Name returns the source name
func (a *Adapter) Name() string {
	return "ws"
}

func (a *Adapter) connectLoop(ctx context.Context, sampleCh chan<- models.PriceSample) {
	defer close(sampleCh)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := a.readConnection(ctx, sampleCh); err != nil {
				a.setConnected(false)
				// Wait before reconnecting
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

func (a *Adapter) readConnection(ctx context.Context, sampleCh chan<- models.PriceSample) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.setConnected(true)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var t tick
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}

		sample := models.PriceSample{
			Token:     t.Token,
			Price:     t.Price,
			Timestamp: time.UnixMilli(t.Timestamp),
		}

		select {
		case sampleCh <- sample:
		case <-ctx.Done():
			return nil
		default:
			// Channel is full, skip this update
		}
	}
}

func (a *Adapter) setConnected(connected bool) {
	a.mu.Lock()
	a.connected = connected
	a.mu.Unlock()
}
