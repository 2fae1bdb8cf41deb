package order

import (
	"context"
	"testing"

	"storefront/internal/customer"
	"storefront/internal/model"
	"storefront/internal/stock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutInput(lines ...stock.Line) CheckoutInput {
	return CheckoutInput{
		Customer: customer.Identity{
			DocumentType:   "CC",
			DocumentNumber: "1020",
			FullName:       "Ana Rojas",
			Email:          "ana@example.com",
			Phone:          "3001234567",
		},
		CityCode: "bog",
		Address:  "Calle 1 # 2-3",
		Lines:    lines,
	}
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 10, true)
	b := f.variant(35000, 1, true)

	o, err := f.svc.Checkout(context.Background(), checkoutInput(
		stock.Line{VariantID: a.ID, Quantity: 2},
		stock.Line{VariantID: b.ID, Quantity: 1},
		stock.Line{VariantID: a.ID, Quantity: 3},
	))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPendingPayment, o.Status)
	assert.Equal(t, "transfer", o.PaymentMethod)
	assert.Equal(t, "BOG", o.CityCode)
	assert.Equal(t, "Ana Rojas", o.FullName)
	assert.NotZero(t, o.CustomerID)
	assert.Regexp(t, `^KME-\d{8}-[A-Z2-7]{6}$`, o.PaymentReference)
	require.Len(t, o.Items, 2, "duplicate lines are merged")

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	byVariant := map[uint]model.OrderItem{}
	for _, it := range stored.Items {
		byVariant[it.ProductVariantID] = it
	}
	assert.Equal(t, int64(5), byVariant[a.ID].Quantity)
	assert.Equal(t, int64(20000), byVariant[a.ID].UnitPrice)
	assert.Equal(t, int64(135000), stored.Subtotal)
	assert.Equal(t, int64(10000), stored.ShippingCost)
	assert.Equal(t, int64(145000), stored.Total)

	assert.Equal(t, int64(10), f.stockOf(a.ID), "checkout does not deduct stock")
	assert.Len(t, f.notifier.created, 1)
}

func TestCheckoutThenConfirmAggregatesQuantities(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 5, true)

	o, err := f.svc.Checkout(context.Background(), checkoutInput(
		stock.Line{VariantID: a.ID, Quantity: 2},
		stock.Line{VariantID: a.ID, Quantity: 3},
	))
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.stockOf(a.ID))
}

func TestCheckoutRejects(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 4, true)
	inactive := f.variant(20000, 4, false)

	tests := []struct {
		name  string
		lines []stock.Line
		want  error
	}{
		{"empty cart", nil, ErrEmptyOrder},
		{"merged quantity exceeds stock", []stock.Line{{VariantID: a.ID, Quantity: 2}, {VariantID: a.ID, Quantity: 3}}, stock.ErrInsufficientStock},
		{"inactive variant", []stock.Line{{VariantID: inactive.ID, Quantity: 1}}, stock.ErrInactiveVariant},
		{"unknown variant", []stock.Line{{VariantID: 9999, Quantity: 1}}, stock.ErrUnknownVariant},
		{"bad quantity", []stock.Line{{VariantID: a.ID, Quantity: 0}}, stock.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), checkoutInput(tt.lines...))
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsBusiness(err))
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCheckoutRequiresCustomerDocument(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 4, true)
	in := checkoutInput(stock.Line{VariantID: a.ID, Quantity: 1})
	in.Customer.DocumentNumber = ""

	_, err := f.svc.Checkout(context.Background(), in)
	assert.ErrorIs(t, err, customer.ErrIncompleteIdentity)
	assert.True(t, IsBusiness(err))
}

func TestLineEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 10, true)
	b := f.variant(80000, 2, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})

	got, err := f.svc.AddItem(ctx, o.ID, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(3), got.Items[0].Quantity)
	assert.Equal(t, int64(60000), got.Subtotal)
	assert.Equal(t, int64(70000), got.Total)

	got, err = f.svc.AddItem(ctx, o.ID, b.ID, 2)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(220000), got.Subtotal)
	assert.Equal(t, int64(0), got.ShippingCost, "free shipping above the threshold")
	assert.Equal(t, int64(220000), got.Total)

	_, err = f.svc.AddItem(ctx, o.ID, b.ID, 1)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	got, err = f.svc.UpdateItemQuantity(ctx, o.ID, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(180000), got.Subtotal)

	got, err = f.svc.RemoveItem(ctx, o.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(20000), got.Subtotal)
	assert.Equal(t, int64(30000), got.Total)

	got, err = f.svc.UpdateItemQuantity(ctx, o.ID, a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Equal(t, int64(0), got.Total)

	_, err = f.svc.RemoveItem(ctx, o.ID, a.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestLineEditingRefusedAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 10, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})
	_, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, o.ID, a.ID, 1)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
	_, err = f.svc.UpdateItemQuantity(ctx, o.ID, a.ID, 5)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
	_, err = f.svc.RemoveItem(ctx, o.ID, a.ID)
	assert.ErrorIs(t, err, ErrOrderNotEditable)

	stored := f.reload(o.ID)
	assert.Equal(t, int64(20000), stored.Subtotal)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 10, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})

	got, err := f.svc.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)

	_, err = f.svc.Cancel(ctx, o.ID)
	assert.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, o.ID)
	assert.ErrorIs(t, err, ErrTerminalState)

	paid := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})
	_, err = f.svc.ConfirmPayment(ctx, paid.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, paid.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}
