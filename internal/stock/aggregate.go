package stock

import (
	"fmt"
	"sort"
)

// Line is one requested (variant, quantity) pair, typically an order item or a cart row.
type Line struct {
	VariantID uint  `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// Requirements maps a variant ID to the total quantity needed across all lines.
type Requirements map[uint]int64

// IDs returns the variant IDs in ascending order, the order rows are locked in.
func (r Requirements) IDs() []uint {
	ids := make([]uint, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Total is the sum of all requested units.
func (r Requirements) Total() int64 {
	var n int64
	for _, q := range r {
		n += q
	}
	return n
}

// Aggregate sums quantities per variant; duplicate lines for the same variant are merged.
func Aggregate(lines []Line) (Requirements, error) {
	req := make(Requirements, len(lines))
	for _, l := range lines {
		if l.VariantID == 0 {
			return nil, fmt.Errorf("%w: line without variant", ErrInvalidQuantity)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: variant %d quantity %d", ErrInvalidQuantity, l.VariantID, l.Quantity)
		}
		req[l.VariantID] += l.Quantity
	}
	return req, nil
}
