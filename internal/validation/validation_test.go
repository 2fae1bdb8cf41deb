package validation

import (
	"testing"

	"storefront/internal/stock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCheckout() CheckoutRequest {
	return CheckoutRequest{
		DocumentType:   "CC",
		DocumentNumber: "1020",
		FullName:       "Ana Rojas",
		Email:          "ana@example.com",
		CityCode:       "BOG",
		Address:        "Calle 1 # 2-3",
		Items:          []stock.Line{{VariantID: 1, Quantity: 2}},
	}
}

func TestCheckoutRequestValidation(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(validCheckout()))

	tests := []struct {
		name  string
		mut   func(*CheckoutRequest)
		field string
	}{
		{"no items", func(r *CheckoutRequest) { r.Items = nil }, "CheckoutRequest.Items"},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, "CheckoutRequest.Items[0].Quantity"},
		{"bad email", func(r *CheckoutRequest) { r.Email = "nope" }, "CheckoutRequest.Email"},
		{"missing document", func(r *CheckoutRequest) { r.DocumentNumber = "" }, "CheckoutRequest.DocumentNumber"},
		{"unknown payment method", func(r *CheckoutRequest) { r.PaymentMethod = "crypto" }, "CheckoutRequest.PaymentMethod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCheckout()
			tt.mut(&req)
			err := v.Struct(req)
			require.Error(t, err)
			assert.Contains(t, validationErrorsToMap(err), tt.field)
		})
	}
}

func TestStockAdjustRequiresNonZeroDelta(t *testing.T) {
	v := New()
	assert.Error(t, v.Struct(StockAdjustRequest{}))
	assert.NoError(t, v.Struct(StockAdjustRequest{Delta: -3}))
}

func TestBoolOr(t *testing.T) {
	f := false
	assert.True(t, BoolOr(nil, true))
	assert.False(t, BoolOr(&f, true))
}
