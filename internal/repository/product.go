package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepository) FindByID(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&p, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// List returns products with their variants; activeOnly hides unpublished products.
func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	var out []model.Product
	q := r.db.WithContext(ctx).Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("id").Find(&out).Error
	return out, err
}
