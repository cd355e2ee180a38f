package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradesim/internal/market"
	"github.com/ajitpratap0/tradesim/internal/metrics"
)

// Manager tracks live sessions and fans quote events out to them
type Manager struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*Session
	dispatcher *Dispatcher
	cfg        Config
	log        zerolog.Logger
}

// NewManager creates a session manager
func NewManager(dispatcher *Dispatcher, cfg Config) *Manager {
	return &Manager{
		sessions:   make(map[uuid.UUID]*Session),
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With().Str("component", "session_manager").Logger(),
	}
}

// Serve runs a new session on conn until it ends
func (m *Manager) Serve(ctx context.Context, conn Conn) error {
	s := New(conn, m.dispatcher, m.cfg)
	m.Register(s)
	defer m.Deregister(s.ID())

	return s.Run(ctx)
}

// Register adds a session
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionOpened()
	m.log.Info().
		Str("session_id", s.ID().String()).
		Str("remote_addr", s.Address()).
		Int("sessions", count).
		Msg("Session registered")
}

// Deregister removes a session; unknown ids are ignored
func (m *Manager) Deregister(id uuid.UUID) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	metrics.SessionClosed()
	m.log.Info().
		Str("session_id", id.String()).
		Int("sessions", count).
		Msg("Session deregistered")
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Broadcast offers a quote event to every live session without blocking.
// Each session decides on its own loop whether it is subscribed. Returns the
// number of sessions the event was queued for.
func (m *Manager) Broadcast(inst market.Instrument, quotes []market.Quote) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	queued := 0
	for _, s := range targets {
		if s.Offer(inst, quotes) {
			queued++
			metrics.RecordMarketDataDelivery(metrics.DeliveryQueued)
			continue
		}
		select {
		case <-s.Done():
			// session ended between snapshot and offer
		default:
			metrics.RecordMarketDataDelivery(metrics.DeliveryDropped)
			m.log.Warn().
				Str("session_id", s.ID().String()).
				Str("instrument", string(inst)).
				Msg("Session inbox full, dropping market data")
		}
	}
	return queued
}
