package shipping

import (
	"context"
	"strings"
)

// Rates prices delivery from the order subtotal and destination city code.
type Rates struct {
	FreeThreshold int64
	HubCode       string
	HubRate       int64
	NationalRate  int64
}

// DefaultRates: free from 150000, 10000 inside the hub city, 18000 anywhere else.
func DefaultRates() Rates {
	return Rates{
		FreeThreshold: 150000,
		HubCode:       "BOG",
		HubRate:       10000,
		NationalRate:  18000,
	}
}

// Cost returns the shipping charge. An empty order ships for free.
func (r Rates) Cost(subtotal int64, destination string) int64 {
	if subtotal <= 0 {
		return 0
	}
	if r.FreeThreshold > 0 && subtotal >= r.FreeThreshold {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(destination), r.HubCode) {
		return r.HubRate
	}
	return r.NationalRate
}

type ratesKey struct{}

// NewContext carries the active rates to code that only sees a context, such as gorm hooks.
func NewContext(ctx context.Context, r Rates) context.Context {
	return context.WithValue(ctx, ratesKey{}, r)
}

// FromContext returns the rates stored by NewContext, or DefaultRates.
func FromContext(ctx context.Context) Rates {
	if ctx != nil {
		if r, ok := ctx.Value(ratesKey{}).(Rates); ok {
			return r
		}
	}
	return DefaultRates()
}
