// Package session runs one trading session per WebSocket connection and
// fans market data out to the sessions that subscribed to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/metrics"
	"github.com/ajitpratap0/tradesim/internal/protocol"
)

// Conn is the subset of *websocket.Conn a session uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// Config tunes a session
type Config struct {
	IdleTimeout  time.Duration // silence that triggers the execution simulator
	WriteTimeout time.Duration
	InboxSize    int     // buffered market data events
	RateLimit    float64 // inbound messages per second, 0 disables
	RateBurst    int
}

// DefaultConfig returns the default session settings
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
		InboxSize:    64,
		RateLimit:    50,
		RateBurst:    100,
	}
}

type marketEvent struct {
	instrument market.Instrument
	quotes     []market.Quote
}

// Session is the receive/dispatch loop of one connection
type Session struct {
	id         uuid.UUID
	conn       Conn
	state      *State
	dispatcher *Dispatcher
	cfg        Config
	inbox      chan marketEvent
	limiter    *rate.Limiter
	done       chan struct{}
	log        zerolog.Logger
}

// New creates a session for conn
func New(conn Conn, dispatcher *Dispatcher, cfg Config) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	id := uuid.New()
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}

	return &Session{
		id:         id,
		conn:       conn,
		state:      NewState(id, addr),
		dispatcher: dispatcher,
		cfg:        cfg,
		inbox:      make(chan marketEvent, cfg.InboxSize),
		limiter:    rate.NewLimiter(limit, burst),
		done:       make(chan struct{}),
		log: log.With().
			Str("component", "session").
			Str("session_id", id.String()).
			Str("remote_addr", addr).
			Logger(),
	}
}

// ID returns the session id
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Address returns the peer address
func (s *Session) Address() string {
	return s.state.Address
}

// Done is closed when Run returns
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Offer queues a market data event without blocking. It reports false when
// the inbox is full or the session has ended.
func (s *Session) Offer(inst market.Instrument, quotes []market.Quote) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.inbox <- marketEvent{instrument: inst, quotes: quotes}:
		return true
	default:
		return false
	}
}

// Run serves the connection until the peer leaves, a write fails or ctx ends.
// A normal close by the peer returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(s.done)
	defer s.conn.Close()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, frames, readErr)

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	s.log.Info().Msg("Session started")

	for {
		select {
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
			s.log.Info().Msg("Session stopped by server")
			return nil

		case err := <-readErr:
			if isPeerClose(err) {
				s.log.Info().Msg("Session closed by peer")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)

		case raw := <-frames:
			if err := s.handleFrame(ctx, raw); err != nil {
				return err
			}
			idle.Reset(s.cfg.IdleTimeout)

		case ev := <-s.inbox:
			if err := s.deliver(ev); err != nil {
				return err
			}

		case <-idle.C:
			if err := s.onIdle(ctx); err != nil {
				return err
			}
			idle.Reset(s.cfg.IdleTimeout)
		}
	}
}

func (s *Session) readLoop(ctx context.Context, frames chan<- []byte, readErr chan<- error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame answers one inbound frame; only a failed write ends the session
func (s *Session) handleFrame(ctx context.Context, raw []byte) error {
	start := time.Now()
	out, kind, err := s.process(ctx, raw)
	metrics.RecordInboundMessage(kind, float64(time.Since(start).Milliseconds()))

	if err != nil {
		code := ErrorCode(err)
		metrics.RecordMessageError(code)
		level := zerolog.WarnLevel
		if code == CodeInternalFault || code == CodePersistenceFailure {
			level = zerolog.ErrorLevel
		}
		s.log.WithLevel(level).Err(err).Str("kind", kind).Str("code", code).Msg("Request failed")
		out = &protocol.ErrorInfo{Reason: Reason(err)}
	}

	return s.send(out)
}

func (s *Session) process(ctx context.Context, raw []byte) (out protocol.Outbound, kind string, err error) {
	kind = "unknown"
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from handler panic")
			out = nil
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if !s.limiter.Allow() {
		return nil, kind, ErrRateLimited
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		return nil, kind, err
	}
	kind = string(env.Kind)

	msg, err := protocol.Payload(env)
	if err != nil {
		return nil, kind, err
	}

	out, err = s.dispatcher.Dispatch(ctx, s.state, msg)
	return out, kind, err
}

// deliver forwards a quote event when this session holds a subscription for it
func (s *Session) deliver(ev marketEvent) error {
	subID, ok := s.state.Subscriptions.ID(ev.instrument)
	if !ok {
		metrics.RecordMarketDataDelivery(metrics.DeliverySkipped)
		return nil
	}

	metrics.RecordMarketDataDelivery(metrics.DeliverySent)
	return s.send(&protocol.MarketDataUpdate{
		SubscriptionID: subID,
		Instrument:     ev.instrument,
		Quotes:         ev.quotes,
	})
}

// onIdle runs the execution simulator and pings the peer
func (s *Session) onIdle(ctx context.Context) error {
	report, err := s.dispatcher.SimulateExecution(ctx, s.state)
	if err != nil {
		metrics.RecordMessageError(ErrorCode(err))
		s.log.Error().Err(err).Msg("Failed to persist simulated execution")
	}
	if report != nil {
		s.log.Debug().
			Str("order_id", report.OrderID.String()).
			Str("status", string(report.OrderStatus)).
			Msg("Simulated execution")
		if err := s.send(report); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if err := s.conn.WriteControl(websocket.PingMessage, []byte(s.state.Address), deadline); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (s *Session) send(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		// Outbound messages are plain structs; this is a programming error
		s.log.Error().Err(err).Str("kind", string(msg.Kind())).Msg("Failed to encode message")
		return nil
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (s *Session) closeWith(code int, text string) {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.log.Debug().Err(err).Msg("Failed to send close frame")
	}
}

func isPeerClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
