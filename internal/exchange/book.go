// Package exchange holds the per-session order book and the order lifecycle
package exchange

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Book is the set of orders owned by one session.
// It is not safe for concurrent use; the owning session loop is its only caller.
type Book struct {
	orders map[uuid.UUID]*Order
	order  []uuid.UUID // insertion order
}

// NewBook creates an empty book
func NewBook() *Book {
	return &Book{
		orders: make(map[uuid.UUID]*Order),
	}
}

// Place creates an active order with a fresh id
func (b *Book) Place(req PlaceOrderRequest, now time.Time) *Order {
	order := &Order{
		ID:         uuid.New(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Amount:     req.Amount,
		Price:      req.Price,
		Status:     OrderStatusActive,
		CreatedAt:  now,
		ChangedAt:  now,
		Address:    req.Address,
	}

	b.orders[order.ID] = order
	b.order = append(b.order, order.ID)
	return order
}

// Get looks an order up by id
func (b *Book) Get(id uuid.UUID) (*Order, bool) {
	order, ok := b.orders[id]
	return order, ok
}

// Cancel moves an active order to cancelled
func (b *Book) Cancel(id uuid.UUID, now time.Time) (*Order, error) {
	order, ok := b.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := order.Transition(OrderStatusCancelled, now); err != nil {
		return nil, err
	}
	return order, nil
}

// Snapshot returns copies of every order in insertion order
func (b *Book) Snapshot() []Order {
	out := make([]Order, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.orders[id])
	}
	return out
}

// Active returns the ids of active orders in insertion order
func (b *Book) Active() []uuid.UUID {
	var ids []uuid.UUID
	for _, id := range b.order {
		if b.orders[id].Status == OrderStatusActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of orders in the book. It serves tests and diagnostics.
func (b *Book) Len() int {
	return len(b.order)
}

// SimulateExecution stands in for exogenous market activity: one uniformly random
// active order is filled or rejected with equal probability. It reports false when
// the book has no active orders.
func (b *Book) SimulateExecution(rng *rand.Rand, now time.Time) (*Order, bool) {
	active := b.Active()
	if len(active) == 0 {
		return nil, false
	}

	order := b.orders[active[rng.IntN(len(active))]]
	outcome := OrderStatusFilled
	if rng.IntN(2) == 1 {
		outcome = OrderStatusRejected
	}

	// an active order can always reach filled or rejected
	_ = order.Transition(outcome, now)
	return order, true
}
