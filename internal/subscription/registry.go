// Package subscription keeps the per-session mapping between subscription ids and instruments
package subscription

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tradesim/internal/market"
)

var (
	// ErrDuplicateSubscription is returned when the instrument is already subscribed
	ErrDuplicateSubscription = errors.New("subscription already exists")

	// ErrSubscriptionNotFound is returned when the id is not held by the session
	ErrSubscriptionNotFound = errors.New("subscription does not exist")
)

// Registry is a bijection between subscription ids and instruments.
// It is not safe for concurrent use.
type Registry struct {
	byID         map[uuid.UUID]market.Instrument
	byInstrument map[market.Instrument]uuid.UUID
	newID        func() uuid.UUID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID:         make(map[uuid.UUID]market.Instrument),
		byInstrument: make(map[market.Instrument]uuid.UUID),
		newID:        uuid.New,
	}
}

// Subscribe binds a fresh id to the instrument
func (r *Registry) Subscribe(inst market.Instrument) (uuid.UUID, error) {
	if existing, ok := r.byInstrument[inst]; ok {
		return uuid.Nil, fmt.Errorf("%w: %s is subscribed as %s", ErrDuplicateSubscription, inst, existing)
	}

	id := r.newID()
	if _, taken := r.byID[id]; taken {
		return uuid.Nil, fmt.Errorf("subscription id collision: %s", id)
	}

	r.byID[id] = inst
	r.byInstrument[inst] = id
	return id, nil
}

// Unsubscribe removes the subscription and returns the instrument it was bound to
func (r *Registry) Unsubscribe(id uuid.UUID) (market.Instrument, error) {
	inst, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}

	delete(r.byID, id)
	delete(r.byInstrument, inst)
	return inst, nil
}

// Instrument resolves a subscription id
func (r *Registry) Instrument(id uuid.UUID) (market.Instrument, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

// ID resolves the subscription held for an instrument
func (r *Registry) ID(inst market.Instrument) (uuid.UUID, bool) {
	id, ok := r.byInstrument[inst]
	return id, ok
}

// Len returns the number of subscriptions. It serves tests and diagnostics.
func (r *Registry) Len() int {
	return len(r.byID)
}

// Instruments returns the subscribed instruments
func (r *Registry) Instruments() []market.Instrument {
	out := make([]market.Instrument, 0, len(r.byInstrument))
	for _, inst := range market.Instruments() {
		if _, ok := r.byInstrument[inst]; ok {
			out = append(out, inst)
		}
	}
	return out
}
