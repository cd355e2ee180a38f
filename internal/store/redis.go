package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
)

const (
	redisKeyPrefix = "tradesim:order:"
	redisIndexKey  = "tradesim:orders"
)

// redisOrder is the stored representation, carrying the owner address
// that the wire form omits
type redisOrder struct {
	ID         uuid.UUID            `json:"uuid"`
	Instrument market.Instrument    `json:"instrument"`
	Side       exchange.OrderSide   `json:"side"`
	Status     exchange.OrderStatus `json:"status"`
	Amount     decimal.Decimal      `json:"amount"`
	Price      decimal.Decimal      `json:"price"`
	Address    string               `json:"address"`
	CreatedAt  time.Time            `json:"creation_time"`
	ChangedAt  time.Time            `json:"change_time"`
}

// RedisStore keeps each order as a JSON value under tradesim:order:<id>
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps orders forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Create upserts the order
func (s *RedisStore) Create(ctx context.Context, order exchange.Order) (uuid.UUID, error) {
	data, err := json.Marshal(toRedisOrder(order))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	key := s.buildKey(order.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		pipe.SAdd(ctx, redisIndexKey, order.ID.String())
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("Failed to store order in redis")
		return uuid.Nil, fmt.Errorf("failed to store order: %w", err)
	}

	return order.ID, nil
}

// Update rewrites status and change time under an optimistic WATCH
func (s *RedisStore) Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, changedAt time.Time) (uuid.UUID, error) {
	key := s.buildKey(id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		var stored redisOrder
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		stored.Status = status
		stored.ChangedAt = changedAt

		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().
				Err(err).
				Str("order_id", id.String()).
				Str("status", string(status)).
				Msg("Failed to update order in redis")
		}
		return uuid.Nil, fmt.Errorf("failed to update order: %w", err)
	}

	return id, nil
}

// Get reads an order back
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (exchange.Order, error) {
	raw, err := s.client.Get(ctx, s.buildKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return exchange.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	var stored redisOrder
	if err := json.Unmarshal(raw, &stored); err != nil {
		return exchange.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return stored.toOrder(), nil
}

// Count returns the number of orders ever stored. It serves tests and diagnostics.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, redisIndexKey).Result()
}

func (s *RedisStore) buildKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

func toRedisOrder(o exchange.Order) redisOrder {
	return redisOrder{
		ID:         o.ID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Status:     o.Status,
		Amount:     o.Amount,
		Price:      o.Price,
		Address:    o.Address,
		CreatedAt:  o.CreatedAt,
		ChangedAt:  o.ChangedAt,
	}
}

func (r redisOrder) toOrder() exchange.Order {
	return exchange.Order{
		ID:         r.ID,
		Instrument: r.Instrument,
		Side:       r.Side,
		Status:     r.Status,
		Amount:     r.Amount,
		Price:      r.Price,
		Address:    r.Address,
		CreatedAt:  r.CreatedAt,
		ChangedAt:  r.ChangedAt,
	}
}
