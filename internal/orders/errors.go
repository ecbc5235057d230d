package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart            = errors.New("cart has no items")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrNotesTooLong         = errors.New("notes exceed maximum length")
	ErrNotFound             = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrProofNotAllowed      = errors.New("payment proof only allowed on placed orders")
)

// ProductNotFoundError covers both missing and inactive products: an
// inactive product is not sellable and must not leak its existence.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// PersistenceError wraps backing-store failures so callers can report them as
// retryable without seeing raw driver errors.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence failure: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
