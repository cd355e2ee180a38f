package protocol

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/validation"
)

// Inbound is a message a client may send. The set is closed to this package.
type Inbound interface {
	Kind() Kind
	check(v *validation.Validator)
}

// Outbound is a message the server may send. The set is closed to this package.
type Outbound interface {
	Kind() Kind
	outbound()
}

// SubscribeMarketData asks for quotes of one instrument
type SubscribeMarketData struct {
	Instrument market.Instrument `json:"instrument"`
}

func (*SubscribeMarketData) Kind() Kind { return KindSubscribeMarketData }

func (m *SubscribeMarketData) check(v *validation.Validator) {
	m.Instrument = normalizeInstrument(v, m.Instrument)
}

// UnsubscribeMarketData drops a subscription by id
type UnsubscribeMarketData struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

func (*UnsubscribeMarketData) Kind() Kind { return KindUnsubscribeMarketData }

func (m *UnsubscribeMarketData) check(v *validation.Validator) {
	v.RequiredUUID("subscription_id", m.SubscriptionID)
}

// PlaceOrder submits a new order
type PlaceOrder struct {
	Instrument market.Instrument  `json:"instrument"`
	Side       exchange.OrderSide `json:"side"`
	Amount     decimal.Decimal    `json:"amount"`
	Price      decimal.Decimal    `json:"price"`
}

func (*PlaceOrder) Kind() Kind { return KindPlaceOrder }

func (m *PlaceOrder) check(v *validation.Validator) {
	m.Instrument = normalizeInstrument(v, m.Instrument)
	m.Side = exchange.OrderSide(validation.SanitizeInput(string(m.Side)))

	ov := validation.NewOrderValidator(v)
	ov.ValidateSide(string(m.Side))
	ov.ValidateAmount(m.Amount)
	ov.ValidatePrice(m.Price)
}

// Request converts the message into an exchange request
func (m *PlaceOrder) Request() exchange.PlaceOrderRequest {
	return exchange.PlaceOrderRequest{
		Instrument: m.Instrument,
		Side:       m.Side,
		Amount:     m.Amount,
		Price:      m.Price,
	}
}

// CancelOrder cancels an active order
type CancelOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (*CancelOrder) Kind() Kind { return KindCancelOrder }

func (m *CancelOrder) check(v *validation.Validator) {
	v.RequiredUUID("order_id", m.OrderID)
}

// GetOrders lists the session's orders
type GetOrders struct{}

func (*GetOrders) Kind() Kind { return KindGetOrders }

func (*GetOrders) check(*validation.Validator) {}

// SaveOrder persists one of the session's orders explicitly
type SaveOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (*SaveOrder) Kind() Kind { return KindSaveOrder }

func (m *SaveOrder) check(v *validation.Validator) {
	v.RequiredUUID("order_id", m.OrderID)
}

func normalizeInstrument(v *validation.Validator, inst market.Instrument) market.Instrument {
	raw := validation.SanitizeInput(string(inst))
	if parsed, err := market.ParseInstrument(raw); err == nil {
		return parsed
	}
	validation.NewOrderValidator(v).ValidateInstrument(raw, market.InstrumentNames())
	return market.Instrument(raw)
}

// SuccessInfo acknowledges a subscription change
type SuccessInfo struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

func (*SuccessInfo) Kind() Kind { return KindSuccessInfo }
func (*SuccessInfo) outbound()  {}

// ErrorInfo reports a failed request
type ErrorInfo struct {
	Reason string `json:"reason"`
}

func (*ErrorInfo) Kind() Kind { return KindErrorInfo }
func (*ErrorInfo) outbound()  {}

// ExecutionReport reports an order status, solicited or not
type ExecutionReport struct {
	OrderID     uuid.UUID            `json:"order_id"`
	OrderStatus exchange.OrderStatus `json:"order_status"`
}

func (*ExecutionReport) Kind() Kind { return KindExecutionReport }
func (*ExecutionReport) outbound()  {}

// OrdersList is a snapshot of the session's orders
type OrdersList struct {
	Orders []exchange.Order `json:"orders"`
}

func (*OrdersList) Kind() Kind { return KindOrdersList }
func (*OrdersList) outbound()  {}

// MarketDataUpdate carries the quote history of a subscribed instrument
type MarketDataUpdate struct {
	SubscriptionID uuid.UUID         `json:"subscription_id"`
	Instrument     market.Instrument `json:"instrument"`
	Quotes         []market.Quote    `json:"quotes"`
}

func (*MarketDataUpdate) Kind() Kind { return KindMarketDataUpdate }
func (*MarketDataUpdate) outbound()  {}

// OrderSaved confirms an explicit save
type OrderSaved struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (*OrderSaved) Kind() Kind { return KindOrderSaved }
func (*OrderSaved) outbound()  {}
