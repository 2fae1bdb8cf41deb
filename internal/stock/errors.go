package stock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInactiveVariant   = errors.New("variant is inactive")
	ErrUnknownVariant    = errors.New("variant not found")
)

// ValidationError aggregates every line that failed enforcement.
type ValidationError struct {
	Failures []Check
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("variant #%d: %s (requested: %d, available: %d)",
			f.VariantID, f.reason(), f.Requested, f.Available))
	}
	return strings.Join(parts, "; ")
}

// Is matches the sentinel of any contained failure.
func (e *ValidationError) Is(target error) bool {
	for _, f := range e.Failures {
		if f.sentinel() == target {
			return true
		}
	}
	return false
}
