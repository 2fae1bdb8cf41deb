package model

import (
	"errors"
	"time"

	"storefront/internal/shipping"

	"gorm.io/gorm"
)

// OrderStatus 订单状态机；paid 是唯一的成功终态，配合 StockDeductedAt 作为幂等标记。
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusCreated        OrderStatus = "created" // legacy pre-payment state
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// IsPrePayment reports whether the order can still be confirmed or edited.
func (s OrderStatus) IsPrePayment() bool {
	return s == OrderStatusCreated || s == OrderStatusPendingPayment
}

// IsClosed reports cancelled/refunded orders; confirmation is never valid for them.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// ErrOrderItemsLocked is returned by the item hooks once the owning order left pre-payment.
var ErrOrderItemsLocked = errors.New("order items cannot be changed after payment")

// Order 一次购买意图。联系人与地址字段是下单时的快照，之后不再从 Customer 推导。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID uint        `gorm:"not null;index" json:"customer_id"`
	Status     OrderStatus `gorm:"size:20;not null;default:pending_payment;index" json:"status"`

	PaymentMethod    string `gorm:"size:30;not null;default:transfer" json:"payment_method"`
	PaymentReference string `gorm:"size:32;index" json:"payment_reference"`

	// snapshot
	FullName       string `gorm:"size:160" json:"full_name"`
	DocumentType   string `gorm:"size:10" json:"document_type"`
	DocumentNumber string `gorm:"size:30" json:"document_number"`
	Email          string `gorm:"size:254" json:"email"`
	Phone          string `gorm:"size:30" json:"phone"`
	CityCode       string `gorm:"size:20" json:"city_code"`
	Address        string `gorm:"size:255" json:"address"`
	Notes          string `gorm:"type:text" json:"notes"`

	// 金额，单位：最小货币单位
	Subtotal     int64 `gorm:"not null;default:0" json:"subtotal"`
	ShippingCost int64 `gorm:"not null;default:0" json:"shipping_cost"`
	Total        int64 `gorm:"not null;default:0" json:"total"`

	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at"`
	StockDeductedAt    *time.Time `json:"stock_deducted_at"`

	Items []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// ApplyTotals sets shipping for the destination and total == subtotal + shipping_cost.
func (o *Order) ApplyTotals(subtotal int64, rates shipping.Rates) {
	o.Subtotal = subtotal
	o.ShippingCost = rates.Cost(subtotal, o.CityCode)
	o.Total = o.Subtotal + o.ShippingCost
}

// BeforeSave 每次落库都按订单行重算金额：新订单用内存中的行，已有订单读本事务内的行。
// 运费规则取自 shipping.NewContext，未设置时用默认规则。
func (o *Order) BeforeSave(tx *gorm.DB) error {
	var subtotal int64
	if o.ID == 0 {
		for _, it := range o.Items {
			subtotal += it.LineTotal()
		}
	} else {
		sum, err := lineSum(tx, o.ID)
		if err != nil {
			return err
		}
		subtotal = sum
	}
	o.ApplyTotals(subtotal, shipping.FromContext(tx.Statement.Context))
	return nil
}

// StockDeducted reports whether the idempotency marker is set.
func (o Order) StockDeducted() bool { return o.StockDeductedAt != nil }

// OrderItem 订单行；UnitPrice 在建行时从商品价格快照，确认付款时不再重读。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID          uint            `gorm:"not null;uniqueIndex:idx_order_variant" json:"order_id"`
	ProductVariantID uint            `gorm:"not null;uniqueIndex:idx_order_variant;index" json:"product_variant_id"`
	ProductVariant   *ProductVariant `gorm:"constraint:OnDelete:RESTRICT" json:"product_variant,omitempty"`

	Quantity  int64 `gorm:"not null;check:chk_item_quantity,quantity > 0" json:"quantity"`
	UnitPrice int64 `gorm:"not null" json:"unit_price"`
}

func (OrderItem) TableName() string { return "order_items" }

// LineTotal is quantity × unit price snapshot.
func (it OrderItem) LineTotal() int64 { return it.Quantity * it.UnitPrice }

func (it *OrderItem) BeforeSave(tx *gorm.DB) error   { return it.ensureEditable(tx) }
func (it *OrderItem) BeforeDelete(tx *gorm.DB) error { return it.ensureEditable(tx) }

// AfterSave/AfterDelete 行变更后在同一事务内重写所属订单的金额，直接改行也不会破坏合计。
func (it *OrderItem) AfterSave(tx *gorm.DB) error   { return syncOrderTotals(tx, it.OrderID) }
func (it *OrderItem) AfterDelete(tx *gorm.DB) error { return syncOrderTotals(tx, it.OrderID) }

func lineSum(tx *gorm.DB, orderID uint) (int64, error) {
	var sum int64
	err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&OrderItem{}).
		Select("COALESCE(SUM(quantity * unit_price), 0)").
		Where("order_id = ?", orderID).
		Scan(&sum).Error
	return sum, err
}

func syncOrderTotals(tx *gorm.DB, orderID uint) error {
	if orderID == 0 {
		return nil
	}
	subtotal, err := lineSum(tx, orderID)
	if err != nil {
		return err
	}
	db := tx.Session(&gorm.Session{NewDB: true})
	var o Order
	if err := db.Model(&Order{}).Select("city_code").Where("id = ?", orderID).Scan(&o.CityCode).Error; err != nil {
		return err
	}
	o.ApplyTotals(subtotal, shipping.FromContext(tx.Statement.Context))
	// UpdateColumns 跳过 Order 的钩子与 updated_at
	return db.Model(&Order{}).Where("id = ?", orderID).UpdateColumns(map[string]interface{}{
		"subtotal":      o.Subtotal,
		"shipping_cost": o.ShippingCost,
		"total":         o.Total,
	}).Error
}

// ensureEditable 读取所属订单状态；非待支付订单的行不可新增、修改或删除。
func (it *OrderItem) ensureEditable(tx *gorm.DB) error {
	if it.OrderID == 0 {
		return nil
	}
	var status string
	err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&Order{}).
		Select("status").
		Where("id = ?", it.OrderID).
		Scan(&status).Error
	if err != nil {
		return err
	}
	if status != "" && !OrderStatus(status).IsPrePayment() && OrderStatus(status) != OrderStatusDraft {
		return ErrOrderItemsLocked
	}
	return nil
}
