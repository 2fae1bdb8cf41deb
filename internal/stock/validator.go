package stock

import (
	"context"
	"fmt"

	"storefront/internal/model"
)

type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusInactive     Status = "inactive"
	StatusMissing      Status = "missing"
)

// HintLastUnit marks a line that takes the last available unit.
const HintLastUnit = "last_unit"

// Check is the classification of one aggregated requirement.
type Check struct {
	VariantID uint   `json:"variant_id"`
	Label     string `json:"label,omitempty"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Status    Status `json:"status"`
	Hint      string `json:"hint,omitempty"`
}

func (c Check) OK() bool { return c.Status == StatusOK }

func (c Check) reason() string {
	switch c.Status {
	case StatusInsufficient:
		return "insufficient stock"
	case StatusInactive:
		return "variant is inactive"
	case StatusMissing:
		return "variant not found"
	default:
		return "ok"
	}
}

func (c Check) sentinel() error {
	switch c.Status {
	case StatusInsufficient:
		return ErrInsufficientStock
	case StatusInactive:
		return ErrInactiveVariant
	case StatusMissing:
		return ErrUnknownVariant
	default:
		return nil
	}
}

// Classify maps each requirement to ok/insufficient/inactive/missing against live variant rows.
// Pure; the result is sorted by variant ID.
func Classify(req Requirements, variants map[uint]model.ProductVariant) []Check {
	checks := make([]Check, 0, len(req))
	for _, id := range req.IDs() {
		c := Check{VariantID: id, Requested: req[id]}
		v, ok := variants[id]
		switch {
		case !ok:
			c.Status = StatusMissing
		case !v.IsActive:
			c.Status = StatusInactive
			c.Available = v.Stock
		case v.Stock < c.Requested:
			c.Status = StatusInsufficient
			c.Available = v.Stock
		default:
			c.Status = StatusOK
			c.Available = v.Stock
			if c.Available == 1 && c.Requested == 1 {
				c.Hint = HintLastUnit
			}
		}
		if ok {
			c.Label = v.Label()
		}
		checks = append(checks, c)
	}
	return checks
}

// Enforce returns a single *ValidationError naming every failing check, or nil.
func Enforce(checks []Check) error {
	var failures []Check
	for _, c := range checks {
		if !c.OK() {
			failures = append(failures, c)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}

// VariantReader loads variant rows without locking them.
type VariantReader interface {
	FindByIDs(ctx context.Context, ids []uint) ([]model.ProductVariant, error)
}

// Report is the advisory view of a stock check.
type Report struct {
	OK       bool            `json:"ok"`
	Items    []Check         `json:"items"`
	Warnings map[uint]string `json:"warnings_by_variant_id"`
	Hints    map[uint]string `json:"hints_by_variant_id"`
}

type Validator struct {
	variants VariantReader
}

func NewValidator(variants VariantReader) *Validator {
	return &Validator{variants: variants}
}

// ValidateStock classifies the lines against current stock.
// With strict=false it never fails on stock problems; with strict=true it also returns the
// aggregated *ValidationError. Infrastructure errors are returned in both modes.
func (v *Validator) ValidateStock(ctx context.Context, lines []Line, strict bool) (Report, error) {
	req, err := Aggregate(lines)
	if err != nil {
		return Report{}, err
	}

	rows, err := v.variants.FindByIDs(ctx, req.IDs())
	if err != nil {
		return Report{}, fmt.Errorf("load variants: %w", err)
	}
	byID := make(map[uint]model.ProductVariant, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	checks := Classify(req, byID)
	report := BuildReport(checks)
	if strict {
		return report, Enforce(checks)
	}
	return report, nil
}

// BuildReport renders checks into warnings and hints keyed by variant ID.
// A variant with a warning never carries a hint.
func BuildReport(checks []Check) Report {
	r := Report{
		OK:       true,
		Items:    checks,
		Warnings: map[uint]string{},
		Hints:    map[uint]string{},
	}
	for _, c := range checks {
		if !c.OK() {
			r.OK = false
			r.Warnings[c.VariantID] = warningText(c)
			continue
		}
		if c.Hint == HintLastUnit {
			r.Hints[c.VariantID] = "last unit available"
		}
	}
	return r
}

func warningText(c Check) string {
	switch c.Status {
	case StatusInsufficient:
		return fmt.Sprintf("only %d available, %d requested", c.Available, c.Requested)
	case StatusInactive:
		return "this variant is no longer sold"
	default:
		return "this variant does not exist"
	}
}
