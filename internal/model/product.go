package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNegativeStock is returned by the variant hooks when a write would leave stock below zero.
var ErrNegativeStock = errors.New("variant stock cannot be negative")

// Product 商品：名称、价格（最小货币单位）、是否上架
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string `gorm:"size:200;not null" json:"name"`
	Slug     string `gorm:"size:220;uniqueIndex;not null" json:"slug"`
	Price    int64  `gorm:"not null" json:"price"`
	IsActive bool   `gorm:"not null" json:"is_active"`

	Variants []ProductVariant `gorm:"constraint:OnDelete:CASCADE" json:"variants,omitempty"`
}

func (Product) TableName() string { return "products" }

// ProductVariant is a sellable configuration of a product (size, color).
// Stock is the authoritative available quantity; nothing else may override it.
type ProductVariant struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductID uint     `gorm:"not null;index" json:"product_id"`
	Product   *Product `json:"product,omitempty"`

	Kind     string `gorm:"size:20;not null;default:generic" json:"kind"`
	Value    string `gorm:"size:20" json:"value"`
	Color    string `gorm:"size:30" json:"color"`
	Stock    int64  `gorm:"not null;default:0;check:chk_variant_stock,stock >= 0" json:"stock"`
	IsActive bool   `gorm:"not null" json:"is_active"`
}

func (ProductVariant) TableName() string { return "product_variants" }

// BeforeSave 拦截负库存写入（Create / Save / Updates 均会经过）。
func (v *ProductVariant) BeforeSave(tx *gorm.DB) error {
	if v.Stock < 0 {
		return ErrNegativeStock
	}
	return nil
}

// Label renders the variant the way operators read it in messages.
func (v ProductVariant) Label() string {
	name := ""
	if v.Product != nil {
		name = v.Product.Name
	}
	switch {
	case name != "" && v.Value != "":
		return name + " / " + v.Value
	case name != "":
		return name
	default:
		return v.Value
	}
}
