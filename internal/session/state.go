package session

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/subscription"
)

// State is everything a session owns. Only the session loop touches it.
type State struct {
	SessionID     uuid.UUID
	Address       string
	Book          *exchange.Book
	Subscriptions *subscription.Registry
	Rand          *rand.Rand
}

// NewState creates empty state for a connection
func NewState(sessionID uuid.UUID, address string) *State {
	seed := uint64(time.Now().UnixNano())
	return &State{
		SessionID:     sessionID,
		Address:       address,
		Book:          exchange.NewBook(),
		Subscriptions: subscription.NewRegistry(),
		Rand:          rand.New(rand.NewPCG(seed, uint64(sessionID.ID()))),
	}
}
