package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/stock"
	"storefront/pkg/logging"

	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
)

type Service struct {
	tx       *repository.TxRunner
	products *repository.ProductRepository
	variants *repository.VariantRepository
}

func NewService(tx *repository.TxRunner, products *repository.ProductRepository, variants *repository.VariantRepository) *Service {
	return &Service{tx: tx, products: products, variants: variants}
}

type ProductInput struct {
	Name     string
	Slug     string
	Price    int64
	IsActive bool
}

type VariantInput struct {
	Kind     string
	Value    string
	Color    string
	Stock    int64
	IsActive bool
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Name)
	}
	p := &model.Product{
		Name:     strings.TrimSpace(in.Name),
		Slug:     slug,
		Price:    in.Price,
		IsActive: in.IsActive,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	return s.products.List(ctx, activeOnly)
}

func (s *Service) AddVariant(ctx context.Context, productID uint, in VariantInput) (*model.ProductVariant, error) {
	if in.Stock < 0 {
		return nil, model.ErrNegativeStock
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("load product %d: %w", productID, err)
	}
	kind := in.Kind
	if kind == "" {
		kind = "generic"
	}
	v := &model.ProductVariant{
		ProductID: productID,
		Kind:      kind,
		Value:     strings.TrimSpace(in.Value),
		Color:     strings.TrimSpace(in.Color),
		Stock:     in.Stock,
		IsActive:  in.IsActive,
	}
	if err := s.variants.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}
	return v, nil
}

// AdjustStock applies a restock (delta > 0) or correction (delta < 0) under the variant row lock.
// It is the only stock write outside payment confirmation.
func (s *Service) AdjustStock(ctx context.Context, variantID uint, delta int64) (*model.ProductVariant, error) {
	var out model.ProductVariant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		variants := s.variants.WithTx(tx)
		v, err := variants.LockByID(ctx, variantID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVariantNotFound
		}
		if err != nil {
			return fmt.Errorf("lock variant %d: %w", variantID, err)
		}
		if err := stock.Restock(v, delta); err != nil {
			return err
		}
		if err := variants.SaveStock(ctx, v); err != nil {
			return fmt.Errorf("save stock of variant %d: %w", variantID, err)
		}
		out = *v
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Log(logging.Fields{
		Service:   "catalog",
		VariantID: variantID,
		Step:      "adjust_stock",
		Status:    "ok",
		Message:   fmt.Sprintf("delta=%d stock=%d", delta, out.Stock),
	})
	return &out, nil
}

// SellableVariants lists active variants that have stock.
func (s *Service) SellableVariants(ctx context.Context) ([]model.ProductVariant, error) {
	return s.variants.ListSellable(ctx)
}
