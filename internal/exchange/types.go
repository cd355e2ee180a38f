package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/market"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is buy or sell
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus represents the current state of an order
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a simulated order owned by a single session
type Order struct {
	ID         uuid.UUID         `json:"order_id"`
	Instrument market.Instrument `json:"instrument"`
	Side       OrderSide         `json:"side"`
	Amount     decimal.Decimal   `json:"amount"`
	Price      decimal.Decimal   `json:"price"`
	Status     OrderStatus       `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ChangedAt  time.Time         `json:"changed_at"`
	Address    string            `json:"-"` // remote address of the owning connection
}

// PlaceOrderRequest carries the validated fields of a new order
type PlaceOrderRequest struct {
	Instrument market.Instrument
	Side       OrderSide
	Amount     decimal.Decimal
	Price      decimal.Decimal
	Address    string
}
