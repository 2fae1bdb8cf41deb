package order

import (
	"storefront/internal/model"
	"storefront/internal/shipping"
)

// Recalculate derives subtotal, shipping and total from the line snapshots.
func Recalculate(o *model.Order, items []model.OrderItem, rates shipping.Rates) {
	var subtotal int64
	for _, it := range items {
		subtotal += it.LineTotal()
	}
	o.ApplyTotals(subtotal, rates)
}
