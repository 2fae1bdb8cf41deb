package queue

import (
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
)

const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// OrderEvent 是订单生命周期事件，经 Redis Stream -> Kafka 送达邮件消费者。
type OrderEvent struct {
	EventID          string    `json:"event_id"`
	Type             string    `json:"type"`
	OrderID          uint      `json:"order_id"`
	PaymentReference string    `json:"payment_reference"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	Total            int64     `json:"total"` // 最小货币单位
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewOrderEvent 从订单快照构造事件，每次调用生成新的 event_id。
func NewOrderEvent(eventType string, o model.Order) OrderEvent {
	return OrderEvent{
		EventID:          uuid.NewString(),
		Type:             eventType,
		OrderID:          o.ID,
		PaymentReference: o.PaymentReference,
		Email:            o.Email,
		FullName:         o.FullName,
		Total:            o.Total,
		OccurredAt:       time.Now().UTC(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch e.Type {
	case EventOrderCreated, EventOrderPaid:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.Total < 0 {
		return fmt.Errorf("total must be >= 0")
	}
	return nil
}

// Key 作为 Kafka 分区键：同一订单的事件落在同一分区，保持先后顺序。
func (e OrderEvent) Key() []byte {
	return []byte(fmt.Sprintf("order-%d", e.OrderID))
}

func (e OrderEvent) streamValues() map[string]interface{} {
	return map[string]interface{}{
		"event_id":          e.EventID,
		"type":              e.Type,
		"order_id":          e.OrderID,
		"payment_reference": e.PaymentReference,
		"email":             e.Email,
		"full_name":         e.FullName,
		"total":             e.Total,
		"occurred_at":       e.OccurredAt.Format(time.RFC3339Nano),
	}
}
