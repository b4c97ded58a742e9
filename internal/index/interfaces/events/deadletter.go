package events

import (
	"context"

	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/mq"
)

// DeadLetterEvent 转投到死信 topic 的事件包装，保留原始 payload 便于离线排查
type DeadLetterEvent struct {
	Topic     string `json:"topic"`
	Partition int    `json:"partition"`
	Offset    int64  `json:"offset"`
	Reason    string `json:"reason"`
	Payload   string `json:"payload"`
}

// DeadLetterPublisher 事件发布能力（由 mq.KafkaProducer 实现）
type DeadLetterPublisher interface {
	SendMessage(ctx context.Context, topic, key string, value any) error
}

// DeadLetterQueue 把无法解析的事件连同失败原因转投到死信 topic
type DeadLetterQueue struct {
	publisher DeadLetterPublisher
	topic     string
}

// NewDeadLetterQueue 创建死信队列。publisher 为 nil 或 topic 为空时 Publish 是空操作。
func NewDeadLetterQueue(publisher DeadLetterPublisher, topic string) *DeadLetterQueue {
	return &DeadLetterQueue{publisher: publisher, topic: topic}
}

// Publish 转投一条事件。发布失败只记日志，不影响消费进度。
func (q *DeadLetterQueue) Publish(ctx context.Context, msg *mq.Message, cause error) {
	if q == nil || q.publisher == nil || q.topic == "" {
		return
	}
	event := DeadLetterEvent{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Reason:    cause.Error(),
		Payload:   string(msg.Value),
	}
	if err := q.publisher.SendMessage(ctx, q.topic, msg.Key, event); err != nil {
		logger.Error(ctx, "failed to publish dead letter",
			"topic", q.topic, "source_offset", msg.Offset, "error", err)
	}
}
