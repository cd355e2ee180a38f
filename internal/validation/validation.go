package validation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator provides validation utilities
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Err returns the collected errors, or nil when there are none
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// PositiveDecimal validates that a decimal is strictly greater than zero
func (v *Validator) PositiveDecimal(field string, value decimal.Decimal) {
	if !value.IsPositive() {
		v.AddError(field, "must be positive")
	}
}

// MaxDecimal validates an upper bound on a decimal
func (v *Validator) MaxDecimal(field string, value, max decimal.Decimal) {
	if value.GreaterThan(max) {
		v.AddError(field, fmt.Sprintf("must be at most %s", max.String()))
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// RequiredUUID validates that an already parsed id is set
func (v *Validator) RequiredUUID(field string, value uuid.UUID) {
	if value == uuid.Nil {
		v.AddError(field, "is required")
	}
}

// OrderValidator validates the fields of a new order
type OrderValidator struct {
	*Validator
}

// NewOrderValidator creates a validator for orders that reports into v.
// A nil v starts a fresh error list.
func NewOrderValidator(v *Validator) *OrderValidator {
	if v == nil {
		v = NewValidator()
	}
	return &OrderValidator{
		Validator: v,
	}
}

const maxSymbolLength = 16

var maxOrderValue = decimal.NewFromInt(1_000_000_000)

// ValidateInstrument checks the instrument against the tradable set
func (v *OrderValidator) ValidateInstrument(instrument string, allowed []string) {
	v.symbol("instrument", instrument, allowed)
}

// ValidateSide validates order side
func (v *OrderValidator) ValidateSide(side string) {
	v.symbol("side", side, []string{"buy", "sell"})
}

// symbol reports at most one error per field; oversized input is not echoed back
func (v *OrderValidator) symbol(field, value string, allowed []string) {
	before := len(v.errors)
	v.Required(field, value)
	if len(v.errors) > before {
		return
	}
	v.MaxLength(field, value, maxSymbolLength)
	if len(v.errors) > before {
		return
	}
	v.OneOf(field, value, allowed)
}

// ValidateAmount validates order amount
func (v *OrderValidator) ValidateAmount(amount decimal.Decimal) {
	v.PositiveDecimal("amount", amount)
	v.MaxDecimal("amount", amount, maxOrderValue)
}

// ValidatePrice validates order price
func (v *OrderValidator) ValidatePrice(price decimal.Decimal) {
	v.PositiveDecimal("price", price)
	v.MaxDecimal("price", price, maxOrderValue)
}

// SanitizeInput sanitizes user input to prevent injection attacks
func SanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	input = strings.TrimSpace(input)

	// Limit length to prevent DoS
	if len(input) > 10000 {
		input = input[:10000]
	}

	return input
}
