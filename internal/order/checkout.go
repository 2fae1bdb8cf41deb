package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/customer"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/shipping"
	"storefront/internal/stock"
	"storefront/pkg/logging"

	"gorm.io/gorm"
)

// CheckoutInput is a cart turned into an order request.
type CheckoutInput struct {
	Customer      customer.Identity
	CityCode      string
	Address       string
	Notes         string
	PaymentMethod string
	Lines         []stock.Line
}

// Checkout creates a pending_payment order from the cart. Stock is checked strictly but
// not deducted; deduction happens only at payment confirmation.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*model.Order, error) {
	ctx = shipping.NewContext(ctx, s.rates)
	req, err := stock.Aggregate(in.Lines)
	if err != nil {
		return nil, err
	}
	if len(req) == 0 {
		return nil, businessf(ErrEmptyOrder, "cart is empty")
	}
	if _, err := s.validator.ValidateStock(ctx, in.Lines, true); err != nil {
		return nil, err
	}

	var created model.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)

		c, err := s.customers.WithTx(tx).Resolve(ctx, in.Customer)
		if err != nil {
			return err
		}

		items, err := s.snapshotItems(ctx, s.variants.WithTx(tx), req)
		if err != nil {
			return err
		}

		o := model.Order{
			CustomerID:     c.ID,
			Status:         model.OrderStatusPendingPayment,
			PaymentMethod:  paymentMethod(in.PaymentMethod),
			FullName:       strings.TrimSpace(c.FullName()),
			DocumentType:   c.DocumentType,
			DocumentNumber: c.DocumentNumber,
			Email:          strings.ToLower(strings.TrimSpace(in.Customer.Email)),
			Phone:          strings.TrimSpace(in.Customer.Phone),
			CityCode:       strings.ToUpper(strings.TrimSpace(in.CityCode)),
			Address:        strings.TrimSpace(in.Address),
			Notes:          strings.TrimSpace(in.Notes),
			Items:          items,
		}
		if name := strings.TrimSpace(in.Customer.FullName); name != "" {
			o.FullName = name
		}
		Recalculate(&o, items, s.rates)

		ref, err := s.refs.Generate(ctx, s.now(), orders.ReferenceExists)
		if err != nil {
			return err
		}
		o.PaymentReference = ref

		if err := orders.Create(ctx, &o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Log(logging.Fields{Service: logService, OrderID: created.ID, Step: "checkout", Status: "ok"})
	if err := s.notifier.OrderCreated(context.WithoutCancel(ctx), created); err != nil {
		logging.Error(logging.Fields{Service: logService, OrderID: created.ID, Step: "notify_created", Status: "failed"}, err)
	}
	return &created, nil
}

// snapshotItems builds one line per variant with the product's current price.
func (s *Service) snapshotItems(ctx context.Context, variants *repository.VariantRepository, req stock.Requirements) ([]model.OrderItem, error) {
	rows, err := variants.FindByIDs(ctx, req.IDs())
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	byID := make(map[uint]model.ProductVariant, len(rows))
	for _, v := range rows {
		byID[v.ID] = v
	}

	items := make([]model.OrderItem, 0, len(req))
	for _, id := range req.IDs() {
		v, ok := byID[id]
		if !ok || v.Product == nil {
			return nil, businessf(ErrUnknownVariant, "variant %d does not exist", id)
		}
		items = append(items, model.OrderItem{
			ProductVariantID: id,
			Quantity:         req[id],
			UnitPrice:        v.Product.Price,
		})
	}
	return items, nil
}

func paymentMethod(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return "transfer"
	}
	return m
}

func editable(o *model.Order) bool {
	return o.Status.IsPrePayment() || o.Status == model.OrderStatusDraft
}

// editOrder runs fn on the locked order and its lines, then recomputes and saves totals.
func (s *Service) editOrder(ctx context.Context, orderID uint, fn func(tx *gorm.DB, o *model.Order) error) (*model.Order, error) {
	ctx = shipping.NewContext(ctx, s.rates)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		o, err := orders.LockByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return businessf(ErrOrderNotFound, "order %d not found", orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		if !editable(o) {
			return businessf(ErrOrderNotEditable, "order %d is %s and its items can no longer change", o.ID, o.Status)
		}

		if err := fn(tx, o); err != nil {
			return err
		}

		items, err := orders.Items(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load items of order %d: %w", o.ID, err)
		}
		Recalculate(o, items, s.rates)
		if err := orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save order %d: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// checkLine verifies the variant can cover qty units without touching stock.
func checkLine(ctx context.Context, variants *repository.VariantRepository, variantID uint, qty int64) (*model.ProductVariant, error) {
	rows, err := variants.FindByIDs(ctx, []uint{variantID})
	if err != nil {
		return nil, fmt.Errorf("load variant %d: %w", variantID, err)
	}
	byID := make(map[uint]model.ProductVariant, len(rows))
	for _, v := range rows {
		byID[v.ID] = v
	}
	if err := stock.Enforce(stock.Classify(stock.Requirements{variantID: qty}, byID)); err != nil {
		return nil, err
	}
	v := byID[variantID]
	if v.Product == nil {
		return nil, businessf(ErrUnknownVariant, "variant %d has no product", variantID)
	}
	return &v, nil
}

// AddItem adds qty units of a variant, merging into the existing line if there is one.
func (s *Service) AddItem(ctx context.Context, orderID, variantID uint, qty int64) (*model.Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: %d", stock.ErrInvalidQuantity, qty)
	}
	return s.editOrder(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		orders := s.orders.WithTx(tx)
		it, err := orders.FindItem(ctx, o.ID, variantID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			it = &model.OrderItem{OrderID: o.ID, ProductVariantID: variantID}
		case err != nil:
			return fmt.Errorf("load item: %w", err)
		}

		v, err := checkLine(ctx, s.variants.WithTx(tx), variantID, it.Quantity+qty)
		if err != nil {
			return err
		}
		if it.ID == 0 {
			it.UnitPrice = v.Product.Price
		}
		it.Quantity += qty
		return orders.SaveItem(ctx, it)
	})
}

// UpdateItemQuantity sets the line quantity; zero removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, orderID, variantID uint, qty int64) (*model.Order, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: %d", stock.ErrInvalidQuantity, qty)
	}
	if qty == 0 {
		return s.RemoveItem(ctx, orderID, variantID)
	}
	return s.editOrder(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		orders := s.orders.WithTx(tx)
		it, err := orders.FindItem(ctx, o.ID, variantID)
		if errors.Is(err, repository.ErrNotFound) {
			return businessf(ErrItemNotFound, "order %d has no line for variant %d", o.ID, variantID)
		}
		if err != nil {
			return fmt.Errorf("load item: %w", err)
		}
		if _, err := checkLine(ctx, s.variants.WithTx(tx), variantID, qty); err != nil {
			return err
		}
		it.Quantity = qty
		return orders.SaveItem(ctx, it)
	})
}

func (s *Service) RemoveItem(ctx context.Context, orderID, variantID uint) (*model.Order, error) {
	return s.editOrder(ctx, orderID, func(tx *gorm.DB, o *model.Order) error {
		orders := s.orders.WithTx(tx)
		it, err := orders.FindItem(ctx, o.ID, variantID)
		if errors.Is(err, repository.ErrNotFound) {
			return businessf(ErrItemNotFound, "order %d has no line for variant %d", o.ID, variantID)
		}
		if err != nil {
			return fmt.Errorf("load item: %w", err)
		}
		return orders.DeleteItem(ctx, it)
	})
}

// Cancel closes a pre-payment order. Cancelling twice is a no-op; paid orders are refused.
func (s *Service) Cancel(ctx context.Context, orderID uint) (*model.Order, error) {
	ctx = shipping.NewContext(ctx, s.rates)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		o, err := orders.LockByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return businessf(ErrOrderNotFound, "order %d not found", orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		if o.Status == model.OrderStatusCancelled {
			return nil
		}
		if !editable(o) {
			return businessf(ErrInvalidState, "order %d cannot be cancelled from status %s", o.ID, o.Status)
		}
		o.Status = model.OrderStatusCancelled
		if err := orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save order %d: %w", o.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Log(logging.Fields{Service: logService, OrderID: orderID, Step: "cancel", Status: "ok"})
	return s.Get(ctx, orderID)
}
