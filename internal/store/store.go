// Package store persists orders behind a small backend-agnostic contract.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tradesim/internal/exchange"
)

// Backend names accepted by store.backend
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var (
	// ErrPersistence wraps every failure surfaced to a session
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned when an update targets an unknown order
	ErrNotFound = errors.New("order not found in store")
)

// OrderStore persists orders. Create upserts on the order id and both calls
// return the id the store holds the row under.
type OrderStore interface {
	Create(ctx context.Context, order exchange.Order) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, changedAt time.Time) (uuid.UUID, error)
}

// Getter is implemented by stores that can read an order back. It serves tests and diagnostics.
type Getter interface {
	Get(ctx context.Context, id uuid.UUID) (exchange.Order, error)
}
