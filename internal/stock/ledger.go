package stock

import (
	"fmt"

	"storefront/internal/model"
)

// Deduct subtracts qty from the variant's stock in memory.
// The caller must hold the variant's row lock and persist the result in the same transaction.
func Deduct(v *model.ProductVariant, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if !v.IsActive {
		return fmt.Errorf("%w: variant %d", ErrInactiveVariant, v.ID)
	}
	if v.Stock < qty {
		return fmt.Errorf("%w: variant %d has %d, needs %d", ErrInsufficientStock, v.ID, v.Stock, qty)
	}
	v.Stock -= qty
	return nil
}

// Restock adds (delta > 0) or removes (delta < 0) units; the result can never go below zero.
func Restock(v *model.ProductVariant, delta int64) error {
	if delta == 0 {
		return fmt.Errorf("%w: zero adjustment", ErrInvalidQuantity)
	}
	if v.Stock+delta < 0 {
		return fmt.Errorf("%w: variant %d has %d, adjustment %d", ErrInsufficientStock, v.ID, v.Stock, delta)
	}
	v.Stock += delta
	return nil
}
