package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// DeliverySent 通知已发送。
	DeliverySent = "sent"
	// DeliveryFailed 最近一次发送失败，等待重投。
	DeliveryFailed = "failed"
)

// DeliveryState 对应 Redis 内某订单最近一次通知的投递结果。
type DeliveryState struct {
	OrderID   uint   `json:"order_id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// GetDeliveryState 查询订单通知状态。found=false 表示尚无记录。
func GetDeliveryState(ctx context.Context, rdb *rd.Client, orderID uint) (DeliveryState, bool, error) {
	m, err := rdb.HGetAll(ctx, DeliveryStateKey(orderID)).Result()
	if err != nil {
		return DeliveryState{}, false, err
	}
	if len(m) == 0 {
		return DeliveryState{}, false, nil
	}
	return DeliveryState{
		OrderID:   orderID,
		EventID:   m["event_id"],
		EventType: m["event_type"],
		Status:    m["status"],
		Reason:    m["reason"],
	}, true, nil
}

// PutDeliveryState 更新投递状态，并刷新 key TTL。
func PutDeliveryState(ctx context.Context, rdb *rd.Client, st DeliveryState, ttl time.Duration) error {
	key := DeliveryStateKey(st.OrderID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"event_id", st.EventID,
		"event_type", st.EventType,
		"status", st.Status,
		"reason", st.Reason,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
