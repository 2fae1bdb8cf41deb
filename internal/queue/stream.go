package queue

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// StreamWriter 将事件追加到 Redis Stream（outbox），由 Relay 异步转发到 Kafka。
type StreamWriter struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamWriter(rdb *rd.Client, stream string) *StreamWriter {
	return &StreamWriter{rdb: rdb, stream: stream, maxLen: 100000}
}

// Append 写入一条事件，返回 Stream 消息 ID。
func (w *StreamWriter) Append(ctx context.Context, evt OrderEvent) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	id, err := w.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: w.stream,
		MaxLen: w.maxLen,
		Approx: true,
		Values: evt.streamValues(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", w.stream, err)
	}
	return id, nil
}
