package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
)

func sampleOrder() exchange.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return exchange.Order{
		ID:         uuid.New(),
		Instrument: market.InstrumentEURUSD,
		Side:       exchange.OrderSideBuy,
		Amount:     decimal.NewFromInt(10),
		Price:      decimal.RequireFromString("33.5"),
		Status:     exchange.OrderStatusActive,
		CreatedAt:  now,
		ChangedAt:  now,
		Address:    "127.0.0.1:5555",
	}
}

// storeContract runs the behaviour every backend shares
func storeContract(t *testing.T, s interface {
	OrderStore
	Getter
}) {
	ctx := context.Background()
	order := sampleOrder()

	id, err := s.Create(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.Address, got.Address)
	assert.True(t, order.Price.Equal(got.Price))
	assert.Equal(t, exchange.OrderStatusActive, got.Status)

	// create is an upsert
	order.Amount = decimal.NewFromInt(20)
	id, err = s.Create(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, id)
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(20)))

	changed := order.CreatedAt.Add(time.Minute)
	id, err = s.Update(ctx, order.ID, exchange.OrderStatusCancelled, changed)
	require.NoError(t, err)
	assert.Equal(t, order.ID, id)

	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCancelled, got.Status)
	assert.True(t, changed.Equal(got.ChangedAt))

	_, err = s.Update(ctx, uuid.New(), exchange.OrderStatusFilled, changed)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	storeContract(t, s)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, sampleOrder())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisStore(client, 0)
	require.NoError(t, err)
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t)
	storeContract(t, s)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	keys := mr.Keys()
	assert.Contains(t, keys, redisIndexKey)
}

func TestRedisStore_TTLSurvivesUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)

	order := sampleOrder()
	_, err = s.Create(context.Background(), order)
	require.NoError(t, err)
	_, err = s.Update(context.Background(), order.ID, exchange.OrderStatusFilled, time.Now())
	require.NoError(t, err)

	assert.Equal(t, time.Hour, mr.TTL(redisKeyPrefix+order.ID.String()))
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Create(context.Background(), sampleOrder())
	assert.Error(t, err)
}

func TestNewRedisStore_NilClient(t *testing.T) {
	_, err := NewRedisStore(nil, 0)
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), true},
		{"connection reset", fmt.Errorf("read: connection reset by peer"), true},
		{"watch conflict", redis.TxFailedErr, true},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"not found", fmt.Errorf("x: %w", ErrNotFound), false},
		{"breaker open", gobreaker.ErrOpenState, false},
		{"generic", errors.New("syntax error at or near"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls int
		err := WithRetry(context.Background(), fastRetry(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls int
		err := WithRetry(context.Background(), fastRetry(), func() error {
			calls++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		var calls int
		err := WithRetry(context.Background(), fastRetry(), func() error {
			calls++
			return ErrNotFound
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var calls int
		err := WithRetry(ctx, fastRetry(), func() error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})
}

// flakyStore fails the first n calls with a transient error
type flakyStore struct {
	failures atomic.Int32
	calls    atomic.Int32
	err      error
	inner    *MemoryStore
}

func (f *flakyStore) Create(ctx context.Context, order exchange.Order) (uuid.UUID, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return uuid.Nil, f.err
	}
	return f.inner.Create(ctx, order)
}

func (f *flakyStore) Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, at time.Time) (uuid.UUID, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return uuid.Nil, f.err
	}
	return f.inner.Update(ctx, id, status, at)
}

func newFlaky(failures int32, err error) *flakyStore {
	f := &flakyStore{err: err, inner: NewMemoryStore()}
	f.failures.Store(failures)
	return f
}

func TestGuarded_RetriesTransientFailures(t *testing.T) {
	flaky := newFlaky(2, errors.New("connection reset by peer"))
	g := NewGuarded(flaky, Options{Backend: "test_retry", Retry: fastRetry(), Breaker: DefaultBreakerSettings()})

	order := sampleOrder()
	id, err := g.Create(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, id)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestGuarded_WrapsPersistenceFailure(t *testing.T) {
	flaky := newFlaky(100, errors.New("disk full"))
	g := NewGuarded(flaky, Options{Backend: "test_wrap", Retry: fastRetry(), Breaker: DefaultBreakerSettings()})

	_, err := g.Create(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")

	_, err = g.Update(context.Background(), uuid.New(), exchange.OrderStatusFilled, time.Now())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestGuarded_NotFoundKeepsBreakerClosed(t *testing.T) {
	settings := DefaultBreakerSettings()
	settings.MinRequests = 2
	g := NewGuarded(NewMemoryStore(), Options{Backend: "test_notfound", Retry: fastRetry(), Breaker: settings})

	for i := 0; i < 5; i++ {
		_, err := g.Update(context.Background(), uuid.New(), exchange.OrderStatusFilled, time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrPersistence)
	}
	assert.Equal(t, gobreaker.StateClosed, g.Breaker().State())
}

func TestGuarded_BreakerOpens(t *testing.T) {
	flaky := newFlaky(1000, errors.New("disk full"))
	settings := BreakerSettings{
		MinRequests:     3,
		FailureRatio:    0.5,
		OpenTimeout:     time.Minute,
		HalfOpenMaxReqs: 1,
		CountInterval:   time.Minute,
	}
	g := NewGuarded(flaky, Options{Backend: "test_open", Retry: RetryConfig{}, Breaker: settings})

	for i := 0; i < 3; i++ {
		_, _ = g.Create(context.Background(), sampleOrder())
	}
	require.Equal(t, gobreaker.StateOpen, g.Breaker().State())

	calls := flaky.calls.Load()
	_, err := g.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, calls, flaky.calls.Load(), "open breaker must not reach the backend")
}

// slowStore blocks until its context expires
type slowStore struct{}

func (slowStore) Create(ctx context.Context, _ exchange.Order) (uuid.UUID, error) {
	<-ctx.Done()
	return uuid.Nil, ctx.Err()
}

func (slowStore) Update(ctx context.Context, _ uuid.UUID, _ exchange.OrderStatus, _ time.Time) (uuid.UUID, error) {
	<-ctx.Done()
	return uuid.Nil, ctx.Err()
}

func TestGuarded_Timeout(t *testing.T) {
	g := NewGuarded(slowStore{}, Options{
		Backend: "test_timeout",
		Timeout: 20 * time.Millisecond,
		Retry:   fastRetry(),
		Breaker: DefaultBreakerSettings(),
	})

	start := time.Now()
	_, err := g.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Less(t, time.Since(start), time.Second)
}
