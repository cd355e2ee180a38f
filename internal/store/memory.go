package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tradesim/internal/exchange"
)

// MemoryStore keeps orders in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]exchange.Order
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[uuid.UUID]exchange.Order),
	}
}

// Create upserts the order
func (s *MemoryStore) Create(ctx context.Context, order exchange.Order) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return order.ID, nil
}

// Update sets the status and change time of a stored order
func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, changedAt time.Time) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	order.Status = status
	order.ChangedAt = changedAt
	s.orders[id] = order
	return id, nil
}

// Get returns a stored order
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (exchange.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return order, nil
}

// Len returns the number of stored orders. It serves tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
