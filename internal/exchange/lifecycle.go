package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOrderNotFound is returned when an order id is not in the caller's book
	ErrOrderNotFound = errors.New("order does not exist")

	// ErrInvalidTransition is matched by every *TransitionError
	ErrInvalidTransition = errors.New("invalid order transition")
)

// TransitionError reports a status change the lifecycle does not allow
type TransitionError struct {
	OrderID uuid.UUID
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s is %s, cannot move to %s", e.OrderID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions lists the allowed targets per status; terminal statuses have none
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusActive: {OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled},
}

// IsTerminal reports whether no transition leaves the status
func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether the status is one of the four lifecycle states
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusActive, OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the order to a new status and stamps ChangedAt.
// The order is left untouched when the move is not allowed.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	o.ChangedAt = at
	return nil
}
