package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one synthetic price snapshot for an instrument.
// MinAmount <= Bid <= Offer <= MaxAmount always holds.
type Quote struct {
	Bid       decimal.Decimal `json:"bid"`
	Offer     decimal.Decimal `json:"offer"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// History keeps an append-only quote list per instrument.
// It is safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	quotes map[Instrument][]Quote
	limit  int // 0 means unbounded
}

// NewHistory creates a history that keeps at most limit quotes per instrument
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{
		quotes: make(map[Instrument][]Quote),
		limit:  limit,
	}
}

// Append adds a quote and returns a copy of the instrument's history after the append
func (h *History) Append(inst Instrument, q Quote) []Quote {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.quotes[inst], q)
	if h.limit > 0 && len(list) > h.limit {
		// drop the oldest entries; copy so the backing array does not grow forever
		trimmed := make([]Quote, h.limit)
		copy(trimmed, list[len(list)-h.limit:])
		list = trimmed
	}
	h.quotes[inst] = list

	return cloneQuotes(list)
}

// Snapshot returns a copy of the instrument's history
func (h *History) Snapshot(inst Instrument) []Quote {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneQuotes(h.quotes[inst])
}

// Len returns the number of stored quotes for an instrument
func (h *History) Len(inst Instrument) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.quotes[inst])
}

func cloneQuotes(src []Quote) []Quote {
	out := make([]Quote, len(src))
	copy(out, src)
	return out
}
