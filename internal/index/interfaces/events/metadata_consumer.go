package events

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/equityindex/internal/index/domain"
	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/mq"
)

// errMissingTicker 缺少主键的元数据事件无法入库
var errMissingTicker = errors.New("metadata event has no ticker")

// TickerMetadataEvent market.tickers topic 上的元数据事件
type TickerMetadataEvent struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Locale   string `json:"locale"`
	Currency string `json:"currency"`
	CIK      string `json:"cik"`
	Active   bool   `json:"active"`
}

// MetadataWriter 元数据批量写入能力（由 ClickHouse 仓储实现）
type MetadataWriter interface {
	BatchUpsertMetadata(ctx context.Context, metadata []domain.TickerMetadata) error
}

// MetadataConsumer 消费元数据事件并批量写入行情库
type MetadataConsumer struct {
	consumer    *mq.KafkaConsumer
	writer      MetadataWriter
	deadLetters *DeadLetterQueue

	batchSize     int
	flushInterval time.Duration
}

// NewMetadataConsumer 创建元数据消费者。deadLetters 可为 nil。
func NewMetadataConsumer(consumer *mq.KafkaConsumer, writer MetadataWriter, deadLetters *DeadLetterQueue, batchSize int, flushInterval time.Duration) *MetadataConsumer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &MetadataConsumer{
		consumer:      consumer,
		writer:        writer,
		deadLetters:   deadLetters,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run 循环消费直到 ctx 取消
func (c *MetadataConsumer) Run(ctx context.Context) error {
	batch := make([]domain.TickerMetadata, 0, c.batchSize)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.writer.BatchUpsertMetadata(ctx, batch); err != nil {
			logger.Error(ctx, "failed to flush ticker metadata", "count", len(batch), "error", err)
			return
		}
		logger.Debug(ctx, "ticker metadata flushed", "count", len(batch))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-ticker.C:
			flush()
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, err := c.consumer.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				flush()
				return ctx.Err()
			}
			logger.Error(ctx, "failed to read metadata event", "error", err)
			continue
		}

		var event TickerMetadataEvent
		if err := msg.UnmarshalPayload(&event); err != nil {
			logger.Warn(ctx, "skipping malformed metadata event", "offset", msg.Offset, "error", err)
			c.deadLetters.Publish(ctx, msg, err)
			continue
		}
		if event.Ticker == "" {
			logger.Warn(ctx, "skipping metadata event without ticker", "offset", msg.Offset)
			c.deadLetters.Publish(ctx, msg, errMissingTicker)
			continue
		}

		batch = append(batch, domain.TickerMetadata{
			Ticker:   event.Ticker,
			Name:     event.Name,
			Market:   event.Market,
			Locale:   event.Locale,
			Currency: event.Currency,
			CIK:      event.CIK,
			Active:   event.Active,
		})
		if len(batch) >= c.batchSize {
			flush()
		}
	}
}
