package order

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/shipping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refDay = time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)

func fixedGenerator(random []byte) *ReferenceGenerator {
	g := NewReferenceGenerator("KME")
	g.rand = bytes.NewReader(random)
	return g
}

func TestReferenceFormat(t *testing.T) {
	g := fixedGenerator([]byte{0, 0, 0, 0})
	ref, err := g.Generate(context.Background(), refDay, func(context.Context, string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "KME-20260102-AAAAAA", ref)
}

func TestReferenceDateIsUTC(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	g := fixedGenerator([]byte{0, 0, 0, 0})
	// 2026-01-02 21:00 in Bogota is already 2026-01-03 in UTC
	ref, err := g.Generate(context.Background(), time.Date(2026, 1, 2, 21, 0, 0, 0, bogota),
		func(context.Context, string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "KME-20260103-AAAAAA", ref)
}

func TestReferenceRetriesOnCollision(t *testing.T) {
	g := fixedGenerator(append(bytes.Repeat([]byte{0}, 4), 0xff, 0xff, 0xff, 0xff))
	var seen []string
	ref, err := g.Generate(context.Background(), refDay, func(_ context.Context, ref string) (bool, error) {
		seen = append(seen, ref)
		return len(seen) == 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "KME-20260102-777777", ref)
	assert.Len(t, seen, 2)
}

func TestReferenceGivesUp(t *testing.T) {
	g := fixedGenerator(bytes.Repeat([]byte{1}, 4*referenceAttempts))
	calls := 0
	_, err := g.Generate(context.Background(), refDay, func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, errReferenceExhausted)
	assert.Equal(t, referenceAttempts, calls)
}

func TestReferenceLookupError(t *testing.T) {
	boom := errors.New("db down")
	g := fixedGenerator([]byte{0, 0, 0, 0})
	_, err := g.Generate(context.Background(), refDay, func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRecalculate(t *testing.T) {
	rates := shipping.DefaultRates()
	tests := []struct {
		name     string
		city     string
		items    []model.OrderItem
		subtotal int64
		shipping int64
	}{
		{"above free threshold", "MDE", []model.OrderItem{{Quantity: 2, UnitPrice: 100000}}, 200000, 0},
		{"hub city", "BOG", []model.OrderItem{{Quantity: 1, UnitPrice: 30000}, {Quantity: 2, UnitPrice: 10000}}, 50000, 10000},
		{"national", "CLO", []model.OrderItem{{Quantity: 1, UnitPrice: 50000}}, 50000, 18000},
		{"no items", "BOG", nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &model.Order{CityCode: tt.city}
			Recalculate(o, tt.items, rates)
			assert.Equal(t, tt.subtotal, o.Subtotal)
			assert.Equal(t, tt.shipping, o.ShippingCost)
			assert.Equal(t, tt.subtotal+tt.shipping, o.Total)
		})
	}
}
