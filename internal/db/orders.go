package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/store"
)

// PoolInterface is the subset of pgxpool.Pool the repository needs
type PoolInterface interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// OrderStore persists orders in the orders table
type OrderStore struct {
	pool PoolInterface
}

// NewOrderStore creates an order repository
func NewOrderStore(pool PoolInterface) *OrderStore {
	return &OrderStore{pool: pool}
}

const upsertOrderSQL = `
	INSERT INTO orders (
		uuid, instrument, side, status, amount, price, address, creation_time, change_time
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (uuid) DO UPDATE SET
		status = EXCLUDED.status,
		amount = EXCLUDED.amount,
		price = EXCLUDED.price,
		change_time = EXCLUDED.change_time
	RETURNING uuid`

// Create upserts an order and returns the stored id
func (s *OrderStore) Create(ctx context.Context, order exchange.Order) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, upsertOrderSQL,
		order.ID,
		string(order.Instrument),
		string(order.Side),
		string(order.Status),
		order.Amount,
		order.Price,
		order.Address,
		order.CreatedAt,
		order.ChangedAt,
	).Scan(&id)
	if err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("instrument", string(order.Instrument)).
			Msg("Failed to insert order")
		return uuid.Nil, fmt.Errorf("failed to insert order: %w", err)
	}

	log.Debug().
		Str("order_id", id.String()).
		Str("status", string(order.Status)).
		Msg("Order stored")

	return id, nil
}

const updateOrderStatusSQL = `
	UPDATE orders
	SET status = $2, change_time = $3
	WHERE uuid = $1
	RETURNING uuid`

// Update changes the status of a stored order
func (s *OrderStore) Update(ctx context.Context, id uuid.UUID, status exchange.OrderStatus, changedAt time.Time) (uuid.UUID, error) {
	var stored uuid.UUID
	err := s.pool.QueryRow(ctx, updateOrderStatusSQL, id, string(status), changedAt).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("status", string(status)).
			Msg("Failed to update order status")
		return uuid.Nil, fmt.Errorf("failed to update order status: %w", err)
	}

	return stored, nil
}

const getOrderSQL = `
	SELECT uuid, instrument, side, status, amount, price, address, creation_time, change_time
	FROM orders
	WHERE uuid = $1`

// Get reads an order back
func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (exchange.Order, error) {
	var (
		order                    exchange.Order
		instrument, side, status string
		amount, price            decimal.Decimal
	)
	err := s.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&order.ID,
		&instrument,
		&side,
		&status,
		&amount,
		&price,
		&order.Address,
		&order.CreatedAt,
		&order.ChangedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return exchange.Order{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return exchange.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	order.Instrument = market.Instrument(instrument)
	order.Side = exchange.OrderSide(side)
	order.Status = exchange.OrderStatus(status)
	order.Amount = amount
	order.Price = price
	return order, nil
}
