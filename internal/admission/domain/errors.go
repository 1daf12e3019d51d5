package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below wrap them so callers can branch with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrValidationFailed  = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
)

// NotFoundError names the kind and id of the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is a shorthand constructor.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidQuantityError reports a non-positive or malformed quantity.
type InvalidQuantityError struct {
	Field  string
	Reason string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// InsufficientStockError carries the full shortage report of a failed consumption.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (required %s, available %s)", s.Name, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError is returned when an order status change is not allowed.
type TransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
	Reason  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// ValidationError wraps a failed ValidationResult so it can travel as an error.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		msgs = append(msgs, issue.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// IdempotencyConflictError is returned when an idempotency key already admitted an order
// at a different outlet of the tenant.
type IdempotencyConflictError struct {
	Key           string
	OrderID       string
	OrderOutletID string
	RequestOutlet string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q already admitted order %s at outlet %s, not %s",
		e.Key, e.OrderID, e.OrderOutletID, e.RequestOutlet)
}

func (e *IdempotencyConflictError) Unwrap() error { return ErrConflict }

// CheckReplay accepts existing as the replay of a request for outletID.
func CheckReplay(existing *Order, outletID string) error {
	if existing.OutletID == outletID {
		return nil
	}
	return &IdempotencyConflictError{
		Key:           existing.IdempotencyKey,
		OrderID:       existing.ID,
		OrderOutletID: existing.OutletID,
		RequestOutlet: outletID,
	}
}
