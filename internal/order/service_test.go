package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront/internal/model"
	"storefront/internal/stock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmPaymentDeductsStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 3, 20000})

	res, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyConfirmed)
	assert.Equal(t, model.OrderStatusPaid, res.Status)
	require.NotNil(t, res.StockDeductedAt)
	require.NotNil(t, res.PaymentConfirmedAt)
	assert.True(t, res.StockDeductedAt.Equal(*res.PaymentConfirmedAt))
	assert.Regexp(t, `^KME-20260314-[A-Z2-7]{6}$`, res.PaymentReference)
	assert.Contains(t, res.PaymentReference, res.PaymentConfirmedAt.UTC().Format("20060102"))
	assert.Equal(t, int64(2), f.stockOf(a.ID))

	again, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyConfirmed)
	assert.Equal(t, model.OrderStatusPaid, again.Status)
	assert.True(t, res.StockDeductedAt.Equal(*again.StockDeductedAt))
	assert.Equal(t, res.PaymentReference, again.PaymentReference)
	assert.Equal(t, int64(2), f.stockOf(a.ID))

	assert.Equal(t, 1, f.notifier.paidCount(), "the no-op confirmation sends nothing")
}

func TestConfirmPaymentInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 5, true)
	b := f.variant(20000, 1, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 2, 20000}, line{b, 2, 20000})

	_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	assert.True(t, IsBusiness(err))

	var verr *stock.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Failures, 1)
	assert.Equal(t, b.ID, verr.Failures[0].VariantID)
	assert.Equal(t, int64(2), verr.Failures[0].Requested)
	assert.Equal(t, int64(1), verr.Failures[0].Available)

	assert.Equal(t, int64(5), f.stockOf(a.ID))
	assert.Equal(t, int64(1), f.stockOf(b.ID))
	got := f.reload(o.ID)
	assert.Equal(t, model.OrderStatusPendingPayment, got.Status)
	assert.Nil(t, got.StockDeductedAt)
	assert.Nil(t, got.PaymentConfirmedAt)
	assert.Zero(t, f.notifier.paidCount())
}

func TestConfirmPaymentInactiveVariant(t *testing.T) {
	f := newFixture(t)
	c := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{c, 1, 20000})
	require.NoError(t, f.db.Model(&model.ProductVariant{}).Where("id = ?", c.ID).Update("is_active", false).Error)

	_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	assert.ErrorIs(t, err, stock.ErrInactiveVariant)
	assert.Equal(t, int64(5), f.stockOf(c.ID))
	assert.Equal(t, model.OrderStatusPendingPayment, f.reload(o.ID).Status)
}

func TestConfirmPaymentUnknownVariant(t *testing.T) {
	f := newFixture(t)
	c := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{c, 1, 20000})

	require.NoError(t, f.db.Exec("PRAGMA foreign_keys = OFF").Error)
	require.NoError(t, f.db.Exec("DELETE FROM product_variants WHERE id = ?", c.ID).Error)

	_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrUnknownVariant)
	assert.True(t, IsBusiness(err))
	assert.Equal(t, model.OrderStatusPendingPayment, f.reload(o.ID).Status)
}

func TestConfirmPaymentRejectsNonConfirmableStates(t *testing.T) {
	tests := []struct {
		status model.OrderStatus
		want   error
	}{
		{model.OrderStatusCancelled, ErrTerminalState},
		{model.OrderStatusRefunded, ErrTerminalState},
		{model.OrderStatusShipped, ErrInvalidState},
		{model.OrderStatusDraft, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			a := f.variant(20000, 5, true)
			o := f.order(tt.status, "BOG", line{a, 1, 20000})

			_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(5), f.stockOf(a.ID))
			assert.Equal(t, tt.status, f.reload(o.ID).Status)
		})
	}
}

func TestConfirmPaymentRejectsPaidWithoutMarker(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPaid, "BOG", line{a, 1, 20000})

	_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "reconcile")
	assert.Equal(t, int64(5), f.stockOf(a.ID))
	assert.Nil(t, f.reload(o.ID).StockDeductedAt)
}

func TestConfirmPaymentLegacyCreatedStatus(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 1, true)
	o := f.order(model.OrderStatusCreated, "BOG", line{a, 1, 20000})

	res, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, res.Status)
	assert.Equal(t, int64(0), f.stockOf(a.ID))
}

func TestConfirmPaymentEmptyOrder(t *testing.T) {
	f := newFixture(t)
	o := f.order(model.OrderStatusPendingPayment, "BOG")

	_, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrEmptyOrder)
	assert.Equal(t, model.OrderStatusPendingPayment, f.reload(o.ID).Status)
}

func TestConfirmPaymentOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConfirmPaymentUsesPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 10, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 2, 20000}, line{f.variant(5000, 10, true), 2, 5000})
	require.NoError(t, f.db.Exec("UPDATE products SET price = ? WHERE id = ?", 99000, a.ProductID).Error)

	res, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	require.NoError(t, err)

	got := f.reload(o.ID)
	assert.Equal(t, int64(50000), got.Subtotal)
	assert.Equal(t, int64(10000), got.ShippingCost)
	assert.Equal(t, int64(60000), got.Total)
	assert.Equal(t, got.Subtotal+got.ShippingCost, got.Total)
	assert.Equal(t, got.Total, res.Total)
}

func TestConfirmPaymentNotifierFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	a := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "MDE", line{a, 1, 20000})

	res, err := f.svc.ConfirmPayment(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, res.Status)
	assert.Equal(t, model.OrderStatusPaid, f.reload(o.ID).Status)
	assert.Equal(t, 1, f.notifier.paidCount())
}

func TestConfirmPaymentConcurrentCallsDeductOnce(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 10, true)
	b := f.variant(15000, 4, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 3, 20000}, line{b, 4, 15000})

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fresh   int
		noop    int
		callErr []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.ConfirmPayment(context.Background(), o.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				callErr = append(callErr, err)
			case res.AlreadyConfirmed:
				noop++
			default:
				fresh++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, callErr)
	assert.Equal(t, 1, fresh)
	assert.Equal(t, callers-1, noop)
	assert.Equal(t, int64(7), f.stockOf(a.ID))
	assert.Equal(t, int64(0), f.stockOf(b.ID))
	assert.Equal(t, 1, f.notifier.paidCount())
}

func TestConfirmPaymentCompetingOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 3, true)
	first := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 2, 20000})
	second := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 2, 20000})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = f.svc.ConfirmPayment(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(1), f.stockOf(a.ID))
}

func TestPaidOrderItemsAreLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})
	_, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)

	it, err := f.orders.FindItem(ctx, o.ID, a.ID)
	require.NoError(t, err)
	it.Quantity = 4
	assert.ErrorIs(t, f.orders.SaveItem(ctx, it), model.ErrOrderItemsLocked)
	assert.ErrorIs(t, f.orders.DeleteItem(ctx, it), model.ErrOrderItemsLocked)
}

func TestVariantStockCannotGoNegative(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 1, true)
	a.Stock = -1
	assert.ErrorIs(t, f.variants.SaveStock(context.Background(), &a), model.ErrNegativeStock)
	assert.Equal(t, int64(1), f.stockOf(a.ID))
}

func TestConfirmPaymentNotifiesWithDetachedContext(t *testing.T) {
	f := newFixture(t)
	a := f.variant(20000, 5, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.svc.ConfirmPayment(ctx, o.ID)
	require.NoError(t, err)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Equal(t, []bool{false}, f.notifier.paidCancelable, "a client disconnect after commit must not drop the notification")
}

func TestDirectLineEditsKeepOrderTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.variant(20000, 10, true)
	b := f.variant(20000, 10, true)
	o := f.order(model.OrderStatusPendingPayment, "BOG", line{a, 1, 20000})

	it, err := f.orders.FindItem(ctx, o.ID, a.ID)
	require.NoError(t, err)
	it.Quantity = 4
	require.NoError(t, f.orders.SaveItem(ctx, it))

	got := f.reload(o.ID)
	assert.Equal(t, int64(80000), got.Subtotal)
	assert.Equal(t, int64(10000), got.ShippingCost)
	assert.Equal(t, int64(90000), got.Total)

	// saving a stale copy of the order recomputes from the stored lines
	require.NoError(t, f.orders.Save(ctx, o))
	got = f.reload(o.ID)
	assert.Equal(t, int64(80000), got.Subtotal)
	assert.Equal(t, int64(90000), got.Total)

	require.NoError(t, f.orders.SaveItem(ctx, &model.OrderItem{OrderID: o.ID, ProductVariantID: b.ID, Quantity: 5, UnitPrice: 20000}))
	got = f.reload(o.ID)
	assert.Equal(t, int64(180000), got.Subtotal)
	assert.Equal(t, int64(0), got.ShippingCost, "free shipping above the threshold")
	assert.Equal(t, int64(180000), got.Total)

	require.NoError(t, f.orders.DeleteItem(ctx, it))
	got = f.reload(o.ID)
	assert.Equal(t, int64(100000), got.Subtotal)
	assert.Equal(t, int64(10000), got.ShippingCost)
	assert.Equal(t, int64(110000), got.Total)
}
