package events

import (
	"context"
	"errors"
	"testing"

	"github.com/wyfcoding/equityindex/pkg/mq"
)

type capturedMessage struct {
	topic string
	key   string
	value any
}

type fakePublisher struct {
	published []capturedMessage
	err       error
}

func (f *fakePublisher) SendMessage(_ context.Context, topic, key string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, capturedMessage{topic: topic, key: key, value: value})
	return nil
}

func TestDeadLetterQueuePublish(t *testing.T) {
	ctx := context.Background()
	msg := &mq.Message{
		Topic:     "market.bars",
		Partition: 2,
		Offset:    42,
		Key:       "AAA",
		Value:     []byte("not json"),
	}
	cause := errors.New("invalid character 'o'")

	t.Run("forwards the original payload with the failure reason", func(t *testing.T) {
		pub := &fakePublisher{}
		queue := NewDeadLetterQueue(pub, "market.deadletter")

		queue.Publish(ctx, msg, cause)

		if len(pub.published) != 1 {
			t.Fatalf("published = %d messages, want 1", len(pub.published))
		}
		got := pub.published[0]
		if got.topic != "market.deadletter" || got.key != "AAA" {
			t.Errorf("published to topic=%s key=%s", got.topic, got.key)
		}
		event, ok := got.value.(DeadLetterEvent)
		if !ok {
			t.Fatalf("value is %T, want DeadLetterEvent", got.value)
		}
		if event.Topic != "market.bars" || event.Offset != 42 {
			t.Errorf("event source = %s offset %d, want market.bars offset 42", event.Topic, event.Offset)
		}
		if event.Payload != "not json" {
			t.Errorf("payload = %q, want the original bytes", event.Payload)
		}
		if event.Reason != cause.Error() {
			t.Errorf("reason = %q, want %q", event.Reason, cause.Error())
		}
	})

	t.Run("nil queue is a no-op", func(t *testing.T) {
		var queue *DeadLetterQueue
		queue.Publish(ctx, msg, cause)
	})

	t.Run("unconfigured topic is a no-op", func(t *testing.T) {
		pub := &fakePublisher{}
		NewDeadLetterQueue(pub, "").Publish(ctx, msg, cause)
		if len(pub.published) != 0 {
			t.Errorf("published = %d messages, want 0", len(pub.published))
		}
	})

	t.Run("publish failure does not panic", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker unavailable")}
		NewDeadLetterQueue(pub, "market.deadletter").Publish(ctx, msg, cause)
	})
}
