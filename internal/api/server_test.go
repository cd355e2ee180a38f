package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/protocol"
	"github.com/ajitpratap0/tradesim/internal/session"
	"github.com/ajitpratap0/tradesim/internal/store"
)

type testEnv struct {
	server   *Server
	sessions *session.Manager
	history  *market.History
	orders   *store.MemoryStore
	http     *httptest.Server
}

func setupTestServer(t *testing.T, cfg session.Config, origins ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orders := store.NewMemoryStore()
	manager := session.NewManager(session.NewDispatcher(orders, nil), cfg)
	history := market.NewHistory(100)

	srv := NewServer(Config{
		Host:           "127.0.0.1",
		Port:           0,
		ReadLimit:      4096,
		AllowedOrigins: origins,
		Version:        "test",
	}, manager, history)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, sessions: manager, history: history, orders: orders, http: ts}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return e.sessions.Count() > 0 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func quietConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.IdleTimeout = time.Minute
	return cfg
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg protocol.Inbound) {
	t.Helper()
	raw, err := protocol.EncodeInbound(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	out, err := protocol.DecodeOutbound(raw)
	require.NoError(t, err)
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer(t, quietConfig())

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, float64(0), response["sessions"])
	assert.Equal(t, "test", response["version"])
}

func TestHealthEndpoint_CountsSessions(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	env.dial(t)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, float64(1), response["sessions"])
}

func TestListInstruments(t *testing.T) {
	env := setupTestServer(t, quietConfig())

	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/instruments", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Instruments []string `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"eur_usd", "eur_rub", "usd_rub"}, response.Instruments)
}

func TestGetQuotes(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	env.history.Append(market.InstrumentEURUSD, market.Quote{
		Bid:       decimal.NewFromInt(31),
		Offer:     decimal.NewFromInt(32),
		MinAmount: decimal.NewFromInt(30),
		MaxAmount: decimal.NewFromInt(33),
	})

	tests := []struct {
		name   string
		path   string
		status int
		count  int
	}{
		{"known with history", "/api/v1/quotes/eur_usd", http.StatusOK, 1},
		{"alternate spelling", "/api/v1/quotes/EURUSD", http.StatusOK, 1},
		{"known without history", "/api/v1/quotes/usd_rub", http.StatusOK, 0},
		{"unknown instrument", "/api/v1/quotes/btc_usd", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var response struct {
				Quotes []market.Quote `json:"quotes"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Len(t, response.Quotes, tt.count)
			assert.NotNil(t, response.Quotes)
		})
	}
}

func TestWebSocket_SubscribeAndReceiveQuotes(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	conn := env.dial(t)

	sendMsg(t, conn, &protocol.SubscribeMarketData{Instrument: market.InstrumentEURRUB})
	ack, ok := readMsg(t, conn).(*protocol.SuccessInfo)
	require.True(t, ok)

	quotes := env.history.Append(market.InstrumentEURRUB, market.Quote{
		Bid:       decimal.NewFromInt(31),
		Offer:     decimal.NewFromInt(35),
		MinAmount: decimal.NewFromInt(30),
		MaxAmount: decimal.NewFromInt(39),
	})
	// not subscribed, never delivered
	env.sessions.Broadcast(market.InstrumentUSDRUB, quotes)
	assert.Equal(t, 1, env.sessions.Broadcast(market.InstrumentEURRUB, quotes))

	update, ok := readMsg(t, conn).(*protocol.MarketDataUpdate)
	require.True(t, ok)
	assert.Equal(t, ack.SubscriptionID, update.SubscriptionID)
	assert.Equal(t, market.InstrumentEURRUB, update.Instrument)
	require.Len(t, update.Quotes, 1)
	assert.True(t, update.Quotes[0].Offer.Equal(decimal.NewFromInt(35)))
}

func TestWebSocket_OrderLifecycle(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	conn := env.dial(t)

	sendMsg(t, conn, &protocol.PlaceOrder{
		Instrument: market.InstrumentEURUSD,
		Side:       exchange.OrderSideBuy,
		Amount:     decimal.NewFromInt(10),
		Price:      decimal.RequireFromString("1.25"),
	})
	placed, ok := readMsg(t, conn).(*protocol.ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, exchange.OrderStatusActive, placed.OrderStatus)
	assert.Equal(t, 1, env.orders.Len())

	sendMsg(t, conn, &protocol.CancelOrder{OrderID: placed.OrderID})
	cancelled, ok := readMsg(t, conn).(*protocol.ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, placed.OrderID, cancelled.OrderID)
	assert.Equal(t, exchange.OrderStatusCancelled, cancelled.OrderStatus)

	stored, err := env.orders.Get(t.Context(), placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusCancelled, stored.Status)
	assert.NotEmpty(t, stored.Address)

	sendMsg(t, conn, &protocol.GetOrders{})
	list, ok := readMsg(t, conn).(*protocol.OrdersList)
	require.True(t, ok)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, exchange.OrderStatusCancelled, list.Orders[0].Status)
}

func TestWebSocket_BadFrameKeepsSession(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message_type":"launch_rocket","message":{}}`)))
	errInfo, ok := readMsg(t, conn).(*protocol.ErrorInfo)
	require.True(t, ok)
	assert.NotEmpty(t, errInfo.Reason)

	sendMsg(t, conn, &protocol.GetOrders{})
	_, ok = readMsg(t, conn).(*protocol.OrdersList)
	assert.True(t, ok, "session keeps serving after a bad frame")
}

func TestWebSocket_IdlePingCarriesAddress(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	env := setupTestServer(t, cfg)
	conn := env.dial(t)

	pings := make(chan string, 8)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- data:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case addr := <-pings:
		assert.Equal(t, conn.LocalAddr().String(), addr)
	case <-time.After(2 * time.Second):
		t.Fatal("no liveness ping received")
	}
}

func TestWebSocket_DisconnectDeregisters(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return env.sessions.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_ReadLimit(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	conn := env.dial(t)

	big := `{"message_type":"get_orders","message":{"pad":"` + strings.Repeat("x", 8192) + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))
	require.Eventually(t, func() bool { return env.sessions.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_CheckOrigin(t *testing.T) {
	env := setupTestServer(t, quietConfig(), "https://allowed.example")
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header = http.Header{"Origin": []string{"https://allowed.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestCorsConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)

	cfg := corsConfig([]string{"https://a.example"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowOrigins)
}

func startAsync(ctx context.Context, srv *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	return done
}

func requireReturns(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0}, env.sessions, env.history)

	require.NoError(t, srv.Stop(context.Background()))
	requireReturns(t, startAsync(context.Background(), srv))
}

func TestServer_StartWithCancelledContext(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0}, env.sessions, env.history)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	requireReturns(t, startAsync(ctx, srv))
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_StopEndsServing(t *testing.T) {
	env := setupTestServer(t, quietConfig())
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0}, env.sessions, env.history)

	done := startAsync(context.Background(), srv)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	requireReturns(t, done)
}
