package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
)

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"array", `[1,2,3]`},
		{"truncated", `{"message_type": "get_orders"`},
		{"missing discriminator", `{"message": {}}`},
		{"discriminator wrong type", `{"message_type": 5, "message": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	for _, kind := range []string{"buy_everything", "error_info", "market_data_update"} {
		t.Run(kind, func(t *testing.T) {
			_, err := Decode([]byte(`{"message_type": "` + kind + `", "message": {}}`))
			assert.ErrorIs(t, err, ErrUnknownKind)
			assert.NotErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecodeInbound_Subscribe(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"message_type":"subscribe_market_data","message":{"instrument":"eur_usd"}}`))
	require.NoError(t, err)

	sub, ok := msg.(*SubscribeMarketData)
	require.True(t, ok)
	assert.Equal(t, market.InstrumentEURUSD, sub.Instrument)
}

func TestDecodeInbound_InstrumentSpellings(t *testing.T) {
	for _, spelling := range []string{"EURRUB", "eur/rub", " EUR_RUB "} {
		msg, err := DecodeInbound([]byte(`{"message_type":"subscribe_market_data","message":{"instrument":"` + spelling + `"}}`))
		require.NoError(t, err, spelling)
		assert.Equal(t, market.InstrumentEURRUB, msg.(*SubscribeMarketData).Instrument)
	}
}

func TestDecodeInbound_SanitizesSymbols(t *testing.T) {
	raw := `{"message_type":"place_order","message":{"instrument":"usd_rub\u0000 ","side":" sell\u0000","amount":"1","price":"2"}}`
	msg, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)

	po := msg.(*PlaceOrder)
	assert.Equal(t, market.InstrumentUSDRUB, po.Instrument)
	assert.Equal(t, exchange.OrderSideSell, po.Side)
}

func TestDecodeInbound_PlaceOrder(t *testing.T) {
	raw := `{"message_type":"place_order","message":{"instrument":"usd_rub","side":"buy","amount":"100","price":35.25}}`
	msg, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)

	po := msg.(*PlaceOrder)
	assert.Equal(t, market.InstrumentUSDRUB, po.Instrument)
	assert.Equal(t, exchange.OrderSideBuy, po.Side)
	assert.True(t, po.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, po.Price.Equal(decimal.RequireFromString("35.25")))

	req := po.Request()
	assert.Equal(t, po.Instrument, req.Instrument)
	assert.True(t, req.Amount.Equal(po.Amount))
}

func TestDecodeInbound_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{
			name:    "unknown instrument",
			raw:     `{"message_type":"subscribe_market_data","message":{"instrument":"btc_usd"}}`,
			wantMsg: "instrument",
		},
		{
			name:    "missing instrument",
			raw:     `{"message_type":"subscribe_market_data","message":{}}`,
			wantMsg: "instrument: is required",
		},
		{
			name:    "zero amount",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"sell","amount":"0","price":"10"}}`,
			wantMsg: "amount: must be positive",
		},
		{
			name:    "negative price",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"sell","amount":"1","price":"-10"}}`,
			wantMsg: "price: must be positive",
		},
		{
			name:    "bad side",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"hold","amount":"1","price":"1"}}`,
			wantMsg: "side",
		},
		{
			name:    "oversized instrument",
			raw:     `{"message_type":"subscribe_market_data","message":{"instrument":"` + strings.Repeat("eur_usd", 40) + `"}}`,
			wantMsg: "instrument: must be at most 16 characters",
		},
		{
			name:    "oversized side",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"` + strings.Repeat("buy", 40) + `","amount":"1","price":"1"}}`,
			wantMsg: "side: must be at most 16 characters",
		},
		{
			name:    "blank side",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"  ","amount":"1","price":"1"}}`,
			wantMsg: "side: is required",
		},
		{
			name:    "non numeric amount",
			raw:     `{"message_type":"place_order","message":{"instrument":"eur_usd","side":"buy","amount":"lots","price":"1"}}`,
			wantMsg: "",
		},
		{
			name:    "bad uuid",
			raw:     `{"message_type":"cancel_order","message":{"order_id":"nope"}}`,
			wantMsg: "",
		},
		{
			name:    "missing order id",
			raw:     `{"message_type":"save_order","message":{}}`,
			wantMsg: "order_id: is required",
		},
		{
			name:    "missing subscription id",
			raw:     `{"message_type":"unsubscribe_market_data","message":{}}`,
			wantMsg: "subscription_id: is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestPayload_NonObjectMessage(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"message_type":"cancel_order","message":"abc"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeInbound_GetOrdersWithoutBody(t *testing.T) {
	for _, raw := range []string{
		`{"message_type":"get_orders"}`,
		`{"message_type":"get_orders","message":null}`,
		`{"message_type":"get_orders","message":{}}`,
	} {
		msg, err := DecodeInbound([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, KindGetOrders, msg.Kind())
	}
}

func TestEncode_Envelope(t *testing.T) {
	id := uuid.New()
	raw, err := Encode(&ExecutionReport{OrderID: id, OrderStatus: exchange.OrderStatusCancelled})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "execution_report", generic["message_type"])

	body := generic["message"].(map[string]any)
	assert.Equal(t, id.String(), body["order_id"])
	assert.Equal(t, "cancelled", body["order_status"])
}

func TestEncode_DecimalsAsStrings(t *testing.T) {
	q := market.Quote{
		Bid:       decimal.RequireFromString("31.5"),
		Offer:     decimal.RequireFromString("32"),
		MinAmount: decimal.RequireFromString("30.1"),
		MaxAmount: decimal.RequireFromString("39.9"),
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := Encode(&MarketDataUpdate{SubscriptionID: uuid.New(), Instrument: market.InstrumentEURUSD, Quotes: []market.Quote{q}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bid":"31.5"`)
	assert.Contains(t, string(raw), `"instrument":"eur_usd"`)
}

func TestOutboundRoundTrip(t *testing.T) {
	outs := []Outbound{
		&SuccessInfo{SubscriptionID: uuid.New()},
		&ErrorInfo{Reason: "The order does not exist"},
		&ExecutionReport{OrderID: uuid.New(), OrderStatus: exchange.OrderStatusActive},
		&OrdersList{Orders: []exchange.Order{}},
		&MarketDataUpdate{SubscriptionID: uuid.New(), Instrument: market.InstrumentUSDRUB, Quotes: []market.Quote{}},
		&OrderSaved{OrderID: uuid.New()},
	}
	require.Len(t, outs, len(OutboundKinds()))

	for _, out := range outs {
		t.Run(string(out.Kind()), func(t *testing.T) {
			raw, err := Encode(out)
			require.NoError(t, err)
			back, err := DecodeOutbound(raw)
			require.NoError(t, err)
			assert.Equal(t, out, back)
		})
	}
}

func TestEncodeInbound_DecodesBack(t *testing.T) {
	in := &PlaceOrder{
		Instrument: market.InstrumentEURRUB,
		Side:       exchange.OrderSideSell,
		Amount:     decimal.NewFromInt(5),
		Price:      decimal.RequireFromString("33.3"),
	}
	raw, err := EncodeInbound(in)
	require.NoError(t, err)

	back, err := DecodeInbound(raw)
	require.NoError(t, err)
	po := back.(*PlaceOrder)
	assert.Equal(t, in.Instrument, po.Instrument)
	assert.True(t, in.Price.Equal(po.Price))
}

func TestRegistry_Closed(t *testing.T) {
	assert.Equal(t, []Kind{
		KindCancelOrder,
		KindGetOrders,
		KindPlaceOrder,
		KindSaveOrder,
		KindSubscribeMarketData,
		KindUnsubscribeMarketData,
	}, InboundKinds())

	for _, k := range InboundKinds() {
		assert.True(t, k.IsInbound())
		assert.Equal(t, k, inboundRegistry[k]().Kind(), "factory for %s builds the wrong message", k)
	}
	for _, k := range OutboundKinds() {
		assert.False(t, k.IsInbound())
		assert.Equal(t, k, outboundRegistry[k]().Kind())
	}
}
