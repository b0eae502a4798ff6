package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a consumption larger than the stock on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a disallowed state transition or a duplicate action.
	ErrConflict = errors.New("conflict")
	// ErrAuthorization indicates the actor lacks the role required for the action.
	ErrAuthorization = errors.New("not authorized")
	// ErrUnauthenticated indicates a request without a resolvable actor.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// InsufficientStockError names the stock item and how much is missing.
type InsufficientStockError struct {
	ItemID    int64
	Item      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

// Shortfall returns requested minus available.
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s: %s requested, %s available (short by %s)",
		e.Item, e.Requested.String(), e.Available.String(), e.Shortfall().String())
}

// Is lets errors.Is match the taxonomy sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds a conflict error with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
