package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// historyLen caps how many events are kept per form channel.
const historyLen = 200

// StreamEvent is an event read back from a form's history stream.
type StreamEvent struct {
	ID    string
	Event Event
}

func streamKey(channel string) string {
	return "stream:" + channel
}

// appendHistory adds an event to the channel's history stream.
func (b *Bus) appendHistory(ctx context.Context, channel string, data []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: historyLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	return nil
}

// History returns up to limit of the most recent events of one job's form,
// oldest first.
func (b *Bus) History(ctx context.Context, jobKind, jobID string, limit int64) ([]StreamEvent, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, streamKey(FormChannel(jobKind, jobID)), "+", "-", limit).Result()
	if err == redis.Nil {
		return []StreamEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]StreamEvent, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			b.log.Warn("Failed to unmarshal event", zap.String("stream_id", msgs[i].ID), zap.Error(err))
			continue
		}
		events = append(events, StreamEvent{ID: msgs[i].ID, Event: ev})
	}
	return events, nil
}
