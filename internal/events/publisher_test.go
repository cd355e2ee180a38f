package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
)

// startTestNATSServer starts an embedded NATS server for testing
func startTestNATSServer(t *testing.T) *server.Server {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)

	return ns
}

func setup(t *testing.T) (*Publisher, *nats.Conn) {
	ns := startTestNATSServer(t)

	pub, err := NewPublisher(Config{URL: ns.ClientURL(), Prefix: "test."})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	return pub, sub
}

func TestPublisher_PublishQuote(t *testing.T) {
	pub, sub := setup(t)

	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("test.quotes.>", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	q := market.Quote{
		MinAmount: decimal.RequireFromString("30.5"),
		Bid:       decimal.RequireFromString("31"),
		Offer:     decimal.RequireFromString("32"),
		MaxAmount: decimal.RequireFromString("39"),
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, pub.PublishQuote(context.Background(), market.InstrumentEURUSD, q))

	select {
	case msg := <-ch:
		assert.Equal(t, "test.quotes.eur_usd", msg.Subject)
		var event QuoteEvent
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, market.InstrumentEURUSD, event.Instrument)
		assert.True(t, q.Bid.Equal(event.Quote.Bid))
	case <-time.After(2 * time.Second):
		t.Fatal("quote event not received")
	}
}

func TestPublisher_PublishExecution(t *testing.T) {
	pub, sub := setup(t)

	ch := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("test.orders.filled", ch)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	sessionID := uuid.New()
	order := exchange.Order{
		ID:         uuid.New(),
		Instrument: market.InstrumentUSDRUB,
		Side:       exchange.OrderSideBuy,
		Amount:     decimal.NewFromInt(1),
		Price:      decimal.NewFromInt(35),
		Status:     exchange.OrderStatusFilled,
		Address:    "1.2.3.4:5",
		ChangedAt:  time.Now().UTC(),
	}
	require.NoError(t, pub.PublishExecution(context.Background(), sessionID, order))

	select {
	case msg := <-ch:
		var event ExecutionEvent
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, order.ID, event.OrderID)
		assert.Equal(t, sessionID, event.SessionID)
		assert.Equal(t, exchange.OrderStatusFilled, event.Status)
		assert.Equal(t, "1.2.3.4:5", event.Address)
	case <-time.After(2 * time.Second):
		t.Fatal("execution event not received")
	}
}

func TestPublisher_CancelledContext(t *testing.T) {
	pub, _ := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.PublishQuote(ctx, market.InstrumentEURRUB, market.Quote{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_Subjects(t *testing.T) {
	p := &Publisher{prefix: "x."}
	assert.Equal(t, "x.quotes.usd_rub", p.QuoteSubject(market.InstrumentUSDRUB))
	assert.Equal(t, "x.orders.cancelled", p.ExecutionSubject(exchange.OrderStatusCancelled))
}

func TestNewPublisher_Unreachable(t *testing.T) {
	_, err := NewPublisher(Config{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}
