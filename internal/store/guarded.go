package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/metrics"
)

// Options configures a Guarded store
type Options struct {
	Backend string        // label used in metrics
	Timeout time.Duration // per call budget covering all retries; 0 disables
	Retry   RetryConfig
	Breaker BreakerSettings
}

// Guarded wraps a backend with a call timeout, retries and a circuit breaker.
// Every error it returns wraps ErrPersistence.
type Guarded struct {
	inner   OrderStore
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps inner
func NewGuarded(inner OrderStore, opts Options) *Guarded {
	if opts.Backend == "" {
		opts.Backend = "unknown"
	}
	return &Guarded{
		inner:   inner,
		opts:    opts,
		breaker: NewBreaker("store_"+opts.Backend, opts.Breaker),
	}
}

// Create upserts the order through the guard chain
func (g *Guarded) Create(ctx context.Context, order exchange.Order) (uuid.UUID, error) {
	return g.call(ctx, "create", func(ctx context.Context) (uuid.UUID, error) {
		return g.inner.Create(ctx, order)
	})
}

// Update changes an order status through the guard chain
func (g *Guarded) Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, changedAt time.Time) (uuid.UUID, error) {
	return g.call(ctx, "update", func(ctx context.Context) (uuid.UUID, error) {
		return g.inner.Update(ctx, id, status, changedAt)
	})
}

// Breaker exposes the circuit breaker state
func (g *Guarded) Breaker() *gobreaker.CircuitBreaker {
	return g.breaker
}

func (g *Guarded) call(ctx context.Context, op string, fn func(context.Context) (uuid.UUID, error)) (uuid.UUID, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	var id uuid.UUID
	err := WithRetry(ctx, g.opts.Retry, func() error {
		result, err := g.breaker.Execute(func() (interface{}, error) {
			start := time.Now()
			got, err := fn(ctx)
			metrics.RecordStoreOperation(g.opts.Backend, op, float64(time.Since(start).Milliseconds()), err)
			return got, err
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				metrics.RecordStoreOperation(g.opts.Backend, op, 0, fmt.Errorf("circuit breaker is open"))
			}
			return err
		}
		id = result.(uuid.UUID)
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %s: %w", ErrPersistence, g.opts.Backend, op, err)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
