package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAmountMismatch    = errors.New("amount does not match order total")
	ErrPaymentInProgress = errors.New("payment already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateCallback = errors.New("callback already applied")
	ErrInvalidCallback   = errors.New("invalid provider callback")
	ErrValidation        = errors.New("validation failed")

	// ErrUnavailable marks storage and broker failures. Callers may retry.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// Error is a domain failure that names the entity and field it is about.
type Error struct {
	Kind   error
	Entity string
	ID     string
	Field  string
	Reason string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		if e.ID != "" {
			msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
		} else {
			msg = fmt.Sprintf("%s: %s", e.Entity, msg)
		}
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Details is the structured reason returned to API callers.
func (e *Error) Details() map[string]interface{} {
	details := map[string]interface{}{}
	if e.Entity != "" {
		details["entity"] = e.Entity
	}
	if e.ID != "" {
		details["id"] = e.ID
	}
	if e.Field != "" {
		details["field"] = e.Field
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}
	return details
}

// InsufficientStockError reports the product line that could not be filled.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

func (e *InsufficientStockError) Details() map[string]interface{} {
	return map[string]interface{}{
		"entity":    "product",
		"id":        e.ProductID.String(),
		"requested": e.Requested,
		"available": e.Available,
	}
}

func NotFound(entity string, id interface{}) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: fmt.Sprint(id)}
}

func Invalid(kind error, entity, field, reason string) error {
	return &Error{Kind: kind, Entity: entity, Field: field, Reason: reason}
}

func InvalidTransition(entity string, id interface{}, from, to string) error {
	return &Error{
		Kind:   ErrInvalidTransition,
		Entity: entity,
		ID:     fmt.Sprint(id),
		Field:  "status",
		Reason: fmt.Sprintf("%s -> %s", from, to),
	}
}

// Unavailable wraps an infrastructure error so that it is distinguishable from
// validation failures without exposing driver details to callers.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// IsDomainError reports whether err is a caller-visible validation failure.
func IsDomainError(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrInvalidQuantity, ErrEmptyCart, ErrInsufficientStock,
		ErrAmountMismatch, ErrPaymentInProgress, ErrInvalidTransition,
		ErrDuplicateCallback, ErrInvalidCallback, ErrValidation,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
