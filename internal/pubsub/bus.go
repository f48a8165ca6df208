package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventFormSaved     = "form.saved"
	EventFormSubmitted = "form.submitted"
	EventPhotoUploaded = "photo.uploaded"
	EventPhotoSwept    = "photo.swept"
)

// Event is a completion-form lifecycle notification.
type Event struct {
	Type       string `json:"type"`
	FormID     string `json:"formId"`
	JobKind    string `json:"jobKind"`
	JobID      string `json:"jobId"`
	TemplateID string `json:"templateId,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	PhotoID    string `json:"photoId,omitempty"`
	URL        string `json:"url,omitempty"`
	At         string `json:"at"`
}

type Bus struct {
	rdb redis.UniversalClient
	log *zap.Logger
}

func New(rdb redis.UniversalClient, log *zap.Logger) *Bus {
	return &Bus{rdb: rdb, log: log}
}

// FormChannel is the channel carrying events of one job's form.
func FormChannel(jobKind, jobID string) string {
	return "form:" + jobKind + ":" + jobID
}

// PublishForm publishes an event to the job's form channel and records it
// in the form's history stream.
func (b *Bus) PublishForm(ctx context.Context, event Event) error {
	if event.At == "" {
		event.At = time.Now().UTC().Format(time.RFC3339)
	}
	channel := FormChannel(event.JobKind, event.JobID)
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.appendHistory(ctx, channel, data); err != nil {
		b.log.Warn("Failed to record event history", zap.String("channel", channel), zap.Error(err))
	}
	return b.Publish(ctx, channel, event)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.String("event", string(data)))
	return nil
}

// Subscribe streams the events of one job's form until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, jobKind, jobID string) <-chan Event {
	sub := b.rdb.Subscribe(ctx, FormChannel(jobKind, jobID))
	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("Dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
