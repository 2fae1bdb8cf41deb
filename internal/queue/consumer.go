package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"storefront/pkg/logging"
	rediskey "storefront/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Handler 处理一条订单事件，例如发送邮件。
type Handler func(ctx context.Context, evt OrderEvent) error

// Consumer 从 Kafka 读取订单事件并交给 Handler。
// 同一事件可能被重投（relay 重试、rebalance），通过 Redis 认领保证只处理一次。
type Consumer struct {
	r      *kafka.Reader
	rdb    *rd.Client
	handle Handler
	owner  string

	claimTTL    time.Duration
	maxAttempts int
}

func NewConsumer(brokers []string, topic, groupID, owner string, rdb *rd.Client, handle Handler) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		rdb:         rdb,
		handle:      handle,
		owner:       owner,
		claimTTL:    7 * 24 * time.Hour,
		maxAttempts: 3,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var evt OrderEvent
		if err := json.Unmarshal(m.Value, &evt); err != nil {
			log.Printf("consumer unmarshal offset=%d: %v", m.Offset, err)
		} else if err := c.Process(ctx, evt); err != nil {
			logging.Error(logging.Fields{
				Service: "mailer",
				OrderID: evt.OrderID,
				EventID: evt.EventID,
				Step:    evt.Type,
				Status:  "failed",
			}, err)
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			log.Printf("consumer commit offset=%d: %v", m.Offset, err)
		}
	}
}

// Process 认领并处理一条事件，失败时释放认领并记录投递状态。
// 已被认领（处理中或已完成）的事件直接跳过。
func (c *Consumer) Process(ctx context.Context, evt OrderEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	claimed, err := rediskey.ClaimEvent(ctx, c.rdb, evt.EventID, c.owner, c.claimTTL)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		logging.Log(logging.Fields{Service: "mailer", OrderID: evt.OrderID, EventID: evt.EventID, Status: "duplicate"})
		return nil
	}

	var handleErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if handleErr = c.handle(ctx, evt); handleErr == nil {
			break
		}
		if attempt < c.maxAttempts {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}

	state := rediskey.DeliveryState{OrderID: evt.OrderID, EventID: evt.EventID, EventType: evt.Type, Status: rediskey.DeliverySent}
	if handleErr != nil {
		state.Status = rediskey.DeliveryFailed
		state.Reason = handleErr.Error()
		if err := rediskey.ReleaseEventClaim(ctx, c.rdb, evt.EventID, c.owner); err != nil {
			log.Printf("consumer release claim event=%s: %v", evt.EventID, err)
		}
	}
	if err := rediskey.PutDeliveryState(ctx, c.rdb, state, c.claimTTL); err != nil {
		log.Printf("consumer put delivery state order=%d: %v", evt.OrderID, err)
	}
	return handleErr
}
