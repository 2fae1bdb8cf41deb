package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
)

type VariantRepository struct {
	db *gorm.DB
}

func NewVariantRepository(db *gorm.DB) *VariantRepository {
	return &VariantRepository{db: db}
}

func (r *VariantRepository) WithTx(tx *gorm.DB) *VariantRepository {
	return &VariantRepository{db: tx}
}

func (r *VariantRepository) Create(ctx context.Context, v *model.ProductVariant) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// FindByIDs reads variants without locking; advisory checks and price snapshots use it.
func (r *VariantRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.ProductVariant, error) {
	var out []model.ProductVariant
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Preload("Product").Where("id IN ?", ids).Order("id").Find(&out).Error
	return out, err
}

// LockByIDs locks every requested variant in one statement, in ascending ID order.
// Missing IDs are simply absent from the result.
func (r *VariantRepository) LockByIDs(ctx context.Context, ids []uint) ([]model.ProductVariant, error) {
	var out []model.ProductVariant
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Preload("Product").
		Where("id IN ?", ids).
		Order("id").
		Find(&out).Error
	return out, err
}

func (r *VariantRepository) LockByID(ctx context.Context, id uint) (*model.ProductVariant, error) {
	var v model.ProductVariant
	err := r.db.WithContext(ctx).Clauses(forUpdate).First(&v, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// SaveStock writes the in-memory stock value of one variant.
func (r *VariantRepository) SaveStock(ctx context.Context, v *model.ProductVariant) error {
	res := r.db.WithContext(ctx).Model(v).Update("stock", v.Stock)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSellable returns active variants with stock, the set offered to selectors.
func (r *VariantRepository) ListSellable(ctx context.Context) ([]model.ProductVariant, error) {
	var out []model.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Product").
		Joins("JOIN products ON products.id = product_variants.product_id AND products.deleted_at IS NULL").
		Where("product_variants.is_active = ? AND product_variants.stock > ?", true, 0).
		Order("product_variants.id").
		Find(&out).Error
	return out, err
}
