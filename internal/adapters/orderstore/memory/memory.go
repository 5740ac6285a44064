// Package memory provides an in-process OrderRepository used by tests and
// by deployments without a database configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"triggerflow/internal/application/ports"
	"triggerflow/internal/domain/models"
	"triggerflow/internal/pubsub"
)

// Store implements the OrderRepository interface in memory
type Store struct {
	mu     sync.Mutex
	orders map[string]models.Order
	subs   *pubsub.KeyedTopic[[]models.Order]
	now    func() time.Time
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		orders: make(map[string]models.Order),
		subs:   pubsub.NewKeyedTopic[[]models.Order](),
		now:    time.Now,
	}
}

var _ ports.OrderRepository = (*Store)(nil)

// Create persists a draft with status PENDING and an assigned id
func (s *Store) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	now := s.now()
	order := models.Order{
		ID:              uuid.NewString(),
		Wallet:          draft.Wallet,
		InputToken:      draft.InputToken,
		OutputToken:     draft.OutputToken,
		InputAmount:     draft.InputAmount,
		Kind:            draft.Kind,
		TriggerPrice:    draft.TriggerPrice,
		Status:          models.StatusPending,
		CreatedAt:       now,
		StatusChangedAt: now,
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()

	s.notify(order.Wallet)
	return order, nil
}

// Get returns the order for the id, or ErrOrderNotFound
func (s *Store) Get(ctx context.Context, id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, ports.ErrOrderNotFound
	}
	return order, nil
}

// ListByWallet returns all orders owned by the wallet, oldest first
func (s *Store) ListByWallet(ctx context.Context, wallet string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(wallet), nil
}

// UpdateStatus unconditionally writes the status and associated fields
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, fields models.StatusFields) error {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return ports.ErrOrderNotFound
	}
	s.apply(&order, status, fields)
	s.orders[id] = order
	s.mu.Unlock()

	s.notify(order.Wallet)
	return nil
}

// TransitionStatus writes the status only if the current status equals from
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.OrderStatus, fields models.StatusFields) (bool, error) {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return false, ports.ErrOrderNotFound
	}
	if order.Status != from {
		s.mu.Unlock()
		return false, nil
	}
	s.apply(&order, to, fields)
	s.orders[id] = order
	s.mu.Unlock()

	s.notify(order.Wallet)
	return true, nil
}

// Subscribe registers a listener for the wallet's order set. The current
// set is delivered immediately, then again after every mutation.
func (s *Store) Subscribe(wallet string, fn func([]models.Order)) func() {
	unsub := s.subs.Subscribe(wallet, fn)

	s.mu.Lock()
	current := s.snapshot(wallet)
	s.mu.Unlock()
	fn(current)

	return unsub
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}

func (s *Store) apply(order *models.Order, status models.OrderStatus, fields models.StatusFields) {
	order.Status = status
	order.StatusChangedAt = s.now()
	if fields.ExecutedAt != nil {
		order.ExecutedAt = fields.ExecutedAt
	}
	if fields.TxSignature != "" {
		order.TxSignature = fields.TxSignature
	}
	order.FailureReason = fields.FailureReason
}

// snapshot assumes s.mu is held.
func (s *Store) snapshot(wallet string) []models.Order {
	orders := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.Wallet == wallet {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders
}

func (s *Store) notify(wallet string) {
	s.mu.Lock()
	current := s.snapshot(wallet)
	s.mu.Unlock()
	s.subs.Publish(wallet, current)
}
