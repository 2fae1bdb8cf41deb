package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Relay 将订单事件从 Redis Stream（outbox）异步转发到 Kafka。
// 语义：发布 Kafka 成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb       *rd.Client
	publisher Publisher

	stream   string
	group    string
	consumer string

	batch   int64
	block   time.Duration
	backoff time.Duration
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		stream:    stream,
		group:     group,
		consumer:  consumer,
		batch:     16,
		block:     2 * time.Second,
		backoff:   300 * time.Millisecond,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		log.Printf("relay ensure group: %v", err)
		return
	}

	for ctx.Err() == nil {
		msgs, err := r.nextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("relay read %s: %v", r.stream, err)
			time.Sleep(r.backoff)
			continue
		}
		if _, err := r.forward(ctx, msgs); err != nil {
			log.Printf("relay forward: %v", err)
			time.Sleep(r.backoff)
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// nextBatch 先取本消费者未 ACK 的事件（上次发布失败的），没有再阻塞等新事件。
// 读 pending 不带 BLOCK（block<0）。
func (r *Relay) nextBatch(ctx context.Context) ([]rd.XMessage, error) {
	msgs, err := r.readGroup(ctx, "0", -1)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}
	return r.readGroup(ctx, ">", r.block)
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    r.batch,
		Block:    block,
	}).Result()
	if errors.Is(err, rd.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []rd.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// forward 按顺序发布，遇到第一个失败即停止，保证同一订单的事件不乱序。
func (r *Relay) forward(ctx context.Context, msgs []rd.XMessage) (int, error) {
	for i, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			return i, fmt.Errorf("message %s: %w", xm.ID, err)
		}
	}
	return len(msgs), nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	evt, err := decodeStreamEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		log.Printf("relay drop malformed message id=%s: %v", xm.ID, err)
		return r.ackAndDelete(ctx, xm.ID)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, evt); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

// decodeStreamEvent 还原 streamValues 写入的字段；Redis 读回的值都是字符串。
func decodeStreamEvent(values map[string]interface{}) (OrderEvent, error) {
	field := func(key string) string {
		s, _ := values[key].(string)
		return s
	}
	for _, key := range []string{"event_id", "type", "order_id", "total", "occurred_at"} {
		if field(key) == "" {
			return OrderEvent{}, fmt.Errorf("missing field %s", key)
		}
	}

	evt := OrderEvent{
		EventID:          field("event_id"),
		Type:             field("type"),
		PaymentReference: field("payment_reference"),
		Email:            field("email"),
		FullName:         field("full_name"),
	}
	orderID, err := strconv.ParseUint(field("order_id"), 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid order_id %q", field("order_id"))
	}
	evt.OrderID = uint(orderID)
	if evt.Total, err = strconv.ParseInt(field("total"), 10, 64); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid total %q", field("total"))
	}
	if evt.OccurredAt, err = time.Parse(time.RFC3339Nano, field("occurred_at")); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid occurred_at %q", field("occurred_at"))
	}

	if err := evt.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return evt, nil
}
