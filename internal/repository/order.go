package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Create inserts the order together with its items.
func (r *OrderRepository) Create(ctx context.Context, o *model.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

// FindByID loads the order with items, variants and products for display.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.ProductVariant.Product").
		First(&o, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// LockByID reads the order row under SELECT ... FOR UPDATE.
func (r *OrderRepository) LockByID(ctx context.Context, id uint) (*model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Clauses(forUpdate).First(&o, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// Items returns the order lines ordered by variant.
func (r *OrderRepository) Items(ctx context.Context, orderID uint) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_variant_id").
		Find(&items).Error
	return items, err
}

// Save persists the order row only; items are written through their own methods.
func (r *OrderRepository) Save(ctx context.Context, o *model.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(o).Error
}

func (r *OrderRepository) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).Where("payment_reference = ?", ref).Count(&n).Error
	return n > 0, err
}

func (r *OrderRepository) FindItem(ctx context.Context, orderID, variantID uint) (*model.OrderItem, error) {
	var it model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_variant_id = ?", orderID, variantID).
		First(&it).Error
	if err != nil {
		return nil, translate(err)
	}
	return &it, nil
}

// SaveItem inserts or updates one line; the item hooks refuse writes on paid orders.
func (r *OrderRepository) SaveItem(ctx context.Context, it *model.OrderItem) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(it).Error
}

func (r *OrderRepository) DeleteItem(ctx context.Context, it *model.OrderItem) error {
	return r.db.WithContext(ctx).Delete(it).Error
}
