package store

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/tradesim/internal/metrics"
)

// BreakerSettings holds circuit breaker configuration for a store
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings mirrors the quick-recovery database profile
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     10,
		FailureRatio:    0.6,
		OpenTimeout:     15 * time.Second,
		HalfOpenMaxReqs: 5,
		CountInterval:   10 * time.Second,
	}
}

// NewBreaker builds a gobreaker circuit breaker that exports its state
func NewBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// A missing row is an answer, not an outage
			return err == nil || isNotFound(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.UpdateCircuitBreakerState(name, stateValue(to))
		},
	})
	metrics.UpdateCircuitBreakerState(name, stateValue(cb.State()))
	return cb
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
