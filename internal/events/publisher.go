// Package events publishes quote and order events to NATS for downstream consumers
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/metrics"
)

// Config configures the publisher
type Config struct {
	URL    string
	Prefix string // Subject prefix (default: "tradesim.")
	Name   string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: "tradesim.",
		Name:   "tradesim",
	}
}

// QuoteEvent is published on <prefix>quotes.<instrument>
type QuoteEvent struct {
	Instrument market.Instrument `json:"instrument"`
	Quote      market.Quote      `json:"quote"`
}

// ExecutionEvent is published on <prefix>orders.<status>
type ExecutionEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	SessionID  uuid.UUID            `json:"session_id"`
	Instrument market.Instrument    `json:"instrument"`
	Side       exchange.OrderSide   `json:"side"`
	Status     exchange.OrderStatus `json:"status"`
	Amount     decimal.Decimal      `json:"amount"`
	Price      decimal.Decimal      `json:"price"`
	Address    string               `json:"address"`
	ChangedAt  time.Time            `json:"changed_at"`
}

// Publisher sends events over a NATS connection
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher connects to NATS
func NewPublisher(config Config) (*Publisher, error) {
	if config.Prefix == "" {
		config.Prefix = "tradesim."
	}
	if config.Name == "" {
		config.Name = "tradesim"
	}

	nc, err := nats.Connect(
		config.URL,
		nats.Name(config.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", config.URL).
		Str("prefix", config.Prefix).
		Msg("Event publisher initialized")

	return &Publisher{nc: nc, prefix: config.Prefix}, nil
}

// QuoteSubject returns the subject quotes of an instrument are published on
func (p *Publisher) QuoteSubject(inst market.Instrument) string {
	return p.prefix + "quotes." + string(inst)
}

// ExecutionSubject returns the subject for orders entering a status
func (p *Publisher) ExecutionSubject(status exchange.OrderStatus) string {
	return p.prefix + "orders." + string(status)
}

// PublishQuote publishes a freshly generated quote
func (p *Publisher) PublishQuote(ctx context.Context, inst market.Instrument, q market.Quote) error {
	err := p.publish(ctx, p.QuoteSubject(inst), QuoteEvent{Instrument: inst, Quote: q})
	metrics.RecordEventPublished("quote", err)
	return err
}

// PublishExecution publishes an order status change
func (p *Publisher) PublishExecution(ctx context.Context, sessionID uuid.UUID, order exchange.Order) error {
	event := ExecutionEvent{
		OrderID:    order.ID,
		SessionID:  sessionID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Status:     order.Status,
		Amount:     order.Amount,
		Price:      order.Price,
		Address:    order.Address,
		ChangedAt:  order.ChangedAt,
	}
	err := p.publish(ctx, p.ExecutionSubject(order.Status), event)
	metrics.RecordEventPublished("execution", err)
	return err
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !p.nc.IsConnected() {
		return fmt.Errorf("event publisher not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
