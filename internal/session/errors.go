package session

import (
	"errors"

	"github.com/ajitpratap0/tradesim/internal/exchange"
	"github.com/ajitpratap0/tradesim/internal/protocol"
	"github.com/ajitpratap0/tradesim/internal/store"
	"github.com/ajitpratap0/tradesim/internal/subscription"
)

var (
	// ErrRateLimited is returned when a session sends faster than its limiter allows
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternal wraps a recovered handler panic
	ErrInternal = errors.New("internal fault")
)

// Error codes used as metric labels
const (
	CodeMalformedPayload      = "malformed_payload"
	CodeUnknownMessageKind    = "unknown_message_kind"
	CodeValidationError       = "validation_error"
	CodeDuplicateSubscription = "duplicate_subscription"
	CodeSubscriptionNotFound  = "subscription_not_found"
	CodeOrderNotFound         = "order_not_found"
	CodeInvalidTransition     = "invalid_transition"
	CodePersistenceFailure    = "persistence_failure"
	CodeRateLimited           = "rate_limited"
	CodeInternalFault         = "internal_fault"
)

// ErrorCode maps an error onto the bounded set of codes
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedPayload):
		return CodeMalformedPayload
	case errors.Is(err, protocol.ErrUnknownKind):
		return CodeUnknownMessageKind
	case errors.Is(err, protocol.ErrValidation):
		return CodeValidationError
	case errors.Is(err, subscription.ErrDuplicateSubscription):
		return CodeDuplicateSubscription
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return CodeSubscriptionNotFound
	case errors.Is(err, exchange.ErrOrderNotFound):
		return CodeOrderNotFound
	case errors.Is(err, exchange.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, store.ErrPersistence):
		return CodePersistenceFailure
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternalFault
	}
}

// Reason renders the error_info text sent to the client. Store and
// internal details stay in the server log.
func Reason(err error) string {
	switch ErrorCode(err) {
	case CodePersistenceFailure:
		return "persistence failure: the order could not be stored"
	case CodeInternalFault:
		return "internal fault"
	default:
		return err.Error()
	}
}
