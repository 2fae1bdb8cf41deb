package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/customer"
	"storefront/internal/database"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/shipping"
	"storefront/internal/stock"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []model.Order
	paid    []model.Order
	err     error
	// paidCancelable records whether each OrderPaid context could still be cancelled.
	paidCancelable []bool
}

func (r *recordingNotifier) OrderCreated(_ context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, o)
	return r.err
}

func (r *recordingNotifier) OrderPaid(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paid = append(r.paid, o)
	r.paidCancelable = append(r.paidCancelable, ctx.Done() != nil)
	return r.err
}

func (r *recordingNotifier) paidCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paid)
}

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	svc      *Service
	notifier *recordingNotifier
	orders   *repository.OrderRepository
	variants *repository.VariantRepository
	seq      int
}

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.OpenTest(t)
	orders := repository.NewOrderRepository(db)
	variants := repository.NewVariantRepository(db)
	notifier := &recordingNotifier{}

	svc := NewService(Deps{
		Tx:        repository.NewTxRunner(db),
		Orders:    orders,
		Variants:  variants,
		Customers: customer.NewService(repository.NewCustomerRepository(db)),
		Validator: stock.NewValidator(variants),
		Notifier:  notifier,
		Rates:     shipping.DefaultRates(),
		Refs:      NewReferenceGenerator("KME"),
		Metrics:   metrics.New(prometheus.NewRegistry()),
	})
	svc.now = func() time.Time { return fixedNow }

	return &fixture{t: t, db: db, svc: svc, notifier: notifier, orders: orders, variants: variants}
}

// variant creates a product with one variant.
func (f *fixture) variant(price, stockQty int64, active bool) model.ProductVariant {
	f.t.Helper()
	f.seq++
	p := model.Product{Name: fmt.Sprintf("Shirt %d", f.seq), Slug: fmt.Sprintf("shirt-%d", f.seq), Price: price, IsActive: true}
	require.NoError(f.t, f.db.Create(&p).Error)
	v := model.ProductVariant{ProductID: p.ID, Kind: "size", Value: "M", Stock: stockQty, IsActive: active}
	require.NoError(f.t, f.db.Create(&v).Error)
	return v
}

type line struct {
	variant model.ProductVariant
	qty     int64
	price   int64
}

// order inserts a pending order with the given lines, then moves it to status.
func (f *fixture) order(status model.OrderStatus, cityCode string, lines ...line) *model.Order {
	f.t.Helper()
	o := model.Order{
		CustomerID: 1,
		Status:     model.OrderStatusPendingPayment,
		FullName:   "Ana Rojas",
		Email:      "ana@example.com",
		CityCode:   cityCode,
	}
	for _, l := range lines {
		o.Items = append(o.Items, model.OrderItem{ProductVariantID: l.variant.ID, Quantity: l.qty, UnitPrice: l.price})
	}
	Recalculate(&o, o.Items, shipping.DefaultRates())
	require.NoError(f.t, f.orders.Create(context.Background(), &o))
	if status != model.OrderStatusPendingPayment {
		require.NoError(f.t, f.db.Exec("UPDATE orders SET status = ? WHERE id = ?", status, o.ID).Error)
		o.Status = status
	}
	return &o
}

func (f *fixture) stockOf(id uint) int64 {
	f.t.Helper()
	var v model.ProductVariant
	require.NoError(f.t, f.db.First(&v, id).Error)
	return v.Stock
}

func (f *fixture) reload(id uint) model.Order {
	f.t.Helper()
	var o model.Order
	require.NoError(f.t, f.db.First(&o, id).Error)
	return o
}
