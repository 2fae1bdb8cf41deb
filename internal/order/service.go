package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/customer"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/shipping"
	"storefront/internal/stock"
	"storefront/pkg/logging"

	"gorm.io/gorm"
)

const logService = "orders"

// Deps are the collaborators of Service; Metrics may be nil.
type Deps struct {
	Tx        *repository.TxRunner
	Orders    *repository.OrderRepository
	Variants  *repository.VariantRepository
	Customers *customer.Service
	Validator *stock.Validator
	Notifier  notify.Notifier
	Rates     shipping.Rates
	Refs      *ReferenceGenerator
	Metrics   *metrics.Metrics
}

type Service struct {
	tx        *repository.TxRunner
	orders    *repository.OrderRepository
	variants  *repository.VariantRepository
	customers *customer.Service
	validator *stock.Validator
	notifier  notify.Notifier
	rates     shipping.Rates
	refs      *ReferenceGenerator
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		tx:        d.Tx,
		orders:    d.Orders,
		variants:  d.Variants,
		customers: d.Customers,
		validator: d.Validator,
		notifier:  d.Notifier,
		rates:     d.Rates,
		refs:      d.Refs,
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

// Result describes the order after a confirmation attempt.
type Result struct {
	OrderID            uint              `json:"order_id"`
	Status             model.OrderStatus `json:"status"`
	StockDeductedAt    *time.Time        `json:"stock_deducted_at"`
	PaymentConfirmedAt *time.Time        `json:"payment_confirmed_at"`
	PaymentReference   string            `json:"payment_reference"`
	Total              int64             `json:"total"`
	AlreadyConfirmed   bool              `json:"already_confirmed"`
}

func resultOf(o *model.Order, already bool) Result {
	return Result{
		OrderID:            o.ID,
		Status:             o.Status,
		StockDeductedAt:    o.StockDeductedAt,
		PaymentConfirmedAt: o.PaymentConfirmedAt,
		PaymentReference:   o.PaymentReference,
		Total:              o.Total,
		AlreadyConfirmed:   already,
	}
}

// alreadyConfirmed must only be evaluated on a row read under the order lock.
func alreadyConfirmed(o *model.Order) bool {
	return o.Status == model.OrderStatusPaid && o.StockDeducted()
}

// ConfirmPayment marks a pre-payment order as paid and deducts its stock exactly once.
//
// Everything runs in one transaction: the order row is locked first, then all referenced
// variants in a single statement ordered by ID. Any failure rolls back every change.
// Repeating the call on a confirmed order is a no-op that reports AlreadyConfirmed.
// The paid notification is sent after commit; its failure is logged, not returned.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uint) (Result, error) {
	start := time.Now()
	ctx = shipping.NewContext(ctx, s.rates)
	var (
		res   Result
		paid  model.Order
		units int64
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		variants := s.variants.WithTx(tx)

		o, err := orders.LockByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return businessf(ErrOrderNotFound, "order %d not found", orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}

		if o.Status.IsClosed() {
			return businessf(ErrTerminalState, "order %d is %s and cannot be confirmed", o.ID, o.Status)
		}
		if alreadyConfirmed(o) {
			res = resultOf(o, true)
			return nil
		}
		if o.Status == model.OrderStatusPaid {
			logging.Log(logging.Fields{
				Service: logService,
				OrderID: o.ID,
				Step:    "confirm",
				Status:  "corrupted",
				Level:   "error",
				Message: "order is paid but has no stock deduction marker; manual reconciliation required",
			})
			return businessf(ErrInvalidState, "order %d is paid without a stock deduction record; reconcile it manually", o.ID)
		}
		if !o.Status.IsPrePayment() {
			return businessf(ErrInvalidState, "order %d cannot be confirmed from status %s", o.ID, o.Status)
		}

		items, err := orders.Items(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load items of order %d: %w", o.ID, err)
		}
		req, err := stock.Aggregate(linesOf(items))
		if err != nil {
			return err
		}
		if len(req) == 0 {
			return businessf(ErrEmptyOrder, "order %d has no items", o.ID)
		}

		locked, err := variants.LockByIDs(ctx, req.IDs())
		if err != nil {
			return fmt.Errorf("lock variants of order %d: %w", o.ID, err)
		}
		byID := make(map[uint]model.ProductVariant, len(locked))
		for _, v := range locked {
			byID[v.ID] = v
		}
		if missing := missingIDs(req, byID); len(missing) > 0 {
			return businessf(ErrUnknownVariant, "order %d references unknown variants %v", o.ID, missing)
		}

		if err := stock.Enforce(stock.Classify(req, byID)); err != nil {
			return err
		}

		for _, id := range req.IDs() {
			v := byID[id]
			if err := stock.Deduct(&v, req[id]); err != nil {
				return err
			}
			if err := variants.SaveStock(ctx, &v); err != nil {
				return fmt.Errorf("save stock of variant %d: %w", id, err)
			}
		}

		Recalculate(o, items, s.rates)

		now := s.now().UTC()
		confirmedAt, deductedAt := now, now
		o.Status = model.OrderStatusPaid
		o.PaymentConfirmedAt = &confirmedAt
		o.StockDeductedAt = &deductedAt
		if o.PaymentReference == "" {
			ref, err := s.refs.Generate(ctx, now, orders.ReferenceExists)
			if err != nil {
				return err
			}
			o.PaymentReference = ref
		}
		if err := orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save order %d: %w", o.ID, err)
		}

		units = req.Total()
		paid = *o
		res = resultOf(o, false)
		return nil
	})

	fields := logging.Fields{
		Service:    logService,
		OrderID:    orderID,
		Step:       "confirm",
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		if IsBusiness(err) {
			s.metrics.ObserveConfirmation(metrics.OutcomeRejected, 0)
			fields.Status = "rejected"
			fields.Message = err.Error()
			logging.Log(fields)
		} else {
			s.metrics.ObserveConfirmation(metrics.OutcomeError, 0)
			fields.Status = "error"
			logging.Error(fields, err)
		}
		return Result{}, err
	}

	if res.AlreadyConfirmed {
		s.metrics.ObserveConfirmation(metrics.OutcomeAlreadyConfirmed, 0)
		fields.Status = "noop"
		logging.Log(fields)
		return res, nil
	}

	s.metrics.ObserveConfirmation(metrics.OutcomeConfirmed, units)
	fields.Status = "ok"
	logging.Log(fields)

	// 事务已提交，请求被取消也要发出通知
	if err := s.notifier.OrderPaid(context.WithoutCancel(ctx), paid); err != nil {
		logging.Error(logging.Fields{Service: logService, OrderID: orderID, Step: "notify_paid", Status: "failed"}, err)
	}
	return res, nil
}

func linesOf(items []model.OrderItem) []stock.Line {
	lines := make([]stock.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, stock.Line{VariantID: it.ProductVariantID, Quantity: it.Quantity})
	}
	return lines
}

func missingIDs(req stock.Requirements, found map[uint]model.ProductVariant) []uint {
	var out []uint
	for _, id := range req.IDs() {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Get loads an order with its lines for display.
func (s *Service) Get(ctx context.Context, orderID uint) (*model.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, businessf(ErrOrderNotFound, "order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return o, nil
}

// ShippingQuote prices delivery for a prospective subtotal.
func (s *Service) ShippingQuote(subtotal int64, cityCode string) int64 {
	return s.rates.Cost(subtotal, cityCode)
}
