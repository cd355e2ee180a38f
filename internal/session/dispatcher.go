package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/metrics"
	"github.com/ajitpratap0/tradesim/internal/protocol"
	"github.com/ajitpratap0/tradesim/internal/store"
)

// Handler serves one inbound kind against the session's own state
type Handler func(ctx context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error)

// ExecutionPublisher receives order status changes
type ExecutionPublisher interface {
	PublishExecution(ctx context.Context, sessionID uuid.UUID, order exchange.Order) error
}

// Dispatcher routes inbound messages to their handlers
type Dispatcher struct {
	handlers  map[protocol.Kind]Handler
	orders    store.OrderStore
	publisher ExecutionPublisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewDispatcher builds the handler table; publisher may be nil
func NewDispatcher(orders store.OrderStore, publisher ExecutionPublisher) *Dispatcher {
	d := &Dispatcher{
		orders:    orders,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
	d.handlers = map[protocol.Kind]Handler{
		protocol.KindSubscribeMarketData:   d.subscribe,
		protocol.KindUnsubscribeMarketData: d.unsubscribe,
		protocol.KindPlaceOrder:            d.placeOrder,
		protocol.KindCancelOrder:           d.cancelOrder,
		protocol.KindGetOrders:             d.getOrders,
		protocol.KindSaveOrder:             d.saveOrder,
	}
	return d
}

// Dispatch runs the handler registered for the message kind
func (d *Dispatcher) Dispatch(ctx context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	h, ok := d.handlers[msg.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %q", protocol.ErrUnknownKind, msg.Kind())
	}
	return h(ctx, s, msg)
}

func (d *Dispatcher) subscribe(_ context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	m := msg.(*protocol.SubscribeMarketData)
	id, err := s.Subscriptions.Subscribe(m.Instrument)
	if err != nil {
		return nil, err
	}
	return &protocol.SuccessInfo{SubscriptionID: id}, nil
}

func (d *Dispatcher) unsubscribe(_ context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	m := msg.(*protocol.UnsubscribeMarketData)
	if _, err := s.Subscriptions.Unsubscribe(m.SubscriptionID); err != nil {
		return nil, err
	}
	return &protocol.SuccessInfo{SubscriptionID: m.SubscriptionID}, nil
}

func (d *Dispatcher) placeOrder(ctx context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	req := msg.(*protocol.PlaceOrder).Request()
	req.Address = s.Address

	order := s.Book.Place(req, d.now())
	metrics.RecordOrderTransition(string(order.Status))

	id, err := d.orders.Create(ctx, *order)
	if err != nil {
		return nil, fmt.Errorf("place order %s: %w", order.ID, err)
	}

	d.publish(ctx, s, *order)
	return &protocol.ExecutionReport{OrderID: id, OrderStatus: order.Status}, nil
}

func (d *Dispatcher) cancelOrder(ctx context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	m := msg.(*protocol.CancelOrder)
	order, err := s.Book.Cancel(m.OrderID, d.now())
	if err != nil {
		return nil, err
	}
	metrics.RecordOrderTransition(string(order.Status))

	id, err := d.persistStatus(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}

	d.publish(ctx, s, *order)
	return &protocol.ExecutionReport{OrderID: id, OrderStatus: order.Status}, nil
}

func (d *Dispatcher) getOrders(_ context.Context, s *State, _ protocol.Inbound) (protocol.Outbound, error) {
	return &protocol.OrdersList{Orders: s.Book.Snapshot()}, nil
}

func (d *Dispatcher) saveOrder(ctx context.Context, s *State, msg protocol.Inbound) (protocol.Outbound, error) {
	m := msg.(*protocol.SaveOrder)
	order, ok := s.Book.Get(m.OrderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, m.OrderID)
	}

	id, err := d.orders.Create(ctx, *order)
	if err != nil {
		return nil, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return &protocol.OrderSaved{OrderID: id}, nil
}

// SimulateExecution moves one random active order to filled or rejected.
// The report is non-nil whenever an order moved, even when persisting it failed.
func (d *Dispatcher) SimulateExecution(ctx context.Context, s *State) (*protocol.ExecutionReport, error) {
	order, ok := s.Book.SimulateExecution(s.Rand, d.now())
	if !ok {
		return nil, nil
	}
	metrics.RecordOrderTransition(string(order.Status))

	report := &protocol.ExecutionReport{OrderID: order.ID, OrderStatus: order.Status}
	if _, err := d.persistStatus(ctx, order); err != nil {
		return report, fmt.Errorf("simulate execution of %s: %w", order.ID, err)
	}

	d.publish(ctx, s, *order)
	return report, nil
}

// persistStatus writes a status change, inserting the whole order when the
// store never saw it (its create failed earlier)
func (d *Dispatcher) persistStatus(ctx context.Context, order *exchange.Order) (uuid.UUID, error) {
	id, err := d.orders.Update(ctx, order.ID, order.Status, order.ChangedAt)
	if errors.Is(err, store.ErrNotFound) {
		return d.orders.Create(ctx, *order)
	}
	return id, err
}

func (d *Dispatcher) publish(ctx context.Context, s *State, order exchange.Order) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishExecution(ctx, s.SessionID, order); err != nil {
		d.log.Warn().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("status", string(order.Status)).
			Msg("Failed to publish execution event")
	}
}
