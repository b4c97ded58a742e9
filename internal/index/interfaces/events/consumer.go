// Package events 行情事件的 Kafka 消费端
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/internal/index/domain"
	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/metrics"
	"github.com/wyfcoding/equityindex/pkg/mq"
)

// PriceBarEvent market.bars topic 上的行情事件
type PriceBarEvent struct {
	Ticker    string  `json:"ticker"`
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	MarketCap float64 `json:"market_cap"`
}

// BarWriter 行情批量写入能力（由 ClickHouse 仓储实现）
type BarWriter interface {
	BatchInsertPriceBars(ctx context.Context, bars []domain.PriceBar) error
}

// BarConsumer 消费行情事件并批量写入列式行情库
type BarConsumer struct {
	consumer    *mq.KafkaConsumer
	writer      BarWriter
	metrics     *metrics.Metrics
	deadLetters *DeadLetterQueue

	batchSize     int
	flushInterval time.Duration
}

// NewBarConsumer 创建行情消费者。metrics 与 deadLetters 可为 nil。
func NewBarConsumer(consumer *mq.KafkaConsumer, writer BarWriter, m *metrics.Metrics, deadLetters *DeadLetterQueue, batchSize int, flushInterval time.Duration) *BarConsumer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BarConsumer{
		consumer:      consumer,
		writer:        writer,
		metrics:       m,
		deadLetters:   deadLetters,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run 循环消费直到 ctx 取消，期间按条数与间隔两个条件刷盘
func (c *BarConsumer) Run(ctx context.Context) error {
	batch := make([]domain.PriceBar, 0, c.batchSize)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.writer.BatchInsertPriceBars(ctx, batch); err != nil {
			logger.Error(ctx, "failed to flush price bars", "count", len(batch), "error", err)
			return
		}
		if c.metrics != nil {
			c.metrics.BarsIngestedTotal.Add(float64(len(batch)))
		}
		logger.Debug(ctx, "price bars flushed", "count", len(batch))
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
			logger.Error(ctx, "failed to read bar event", "error", err)
			continue
		}

		bar, err := toPriceBar(msg)
		if err != nil {
			logger.Warn(ctx, "skipping malformed bar event", "offset", msg.Offset, "error", err)
			c.deadLetters.Publish(ctx, msg, err)
			continue
		}

		batch = append(batch, bar)
		if len(batch) >= c.batchSize {
			flush()
		}
	}
}

func toPriceBar(msg *mq.Message) (domain.PriceBar, error) {
	var event PriceBarEvent
	if err := msg.UnmarshalPayload(&event); err != nil {
		return domain.PriceBar{}, err
	}
	date, err := time.Parse(domain.DateLayout, event.Date)
	if err != nil {
		return domain.PriceBar{}, err
	}
	return domain.PriceBar{
		Ticker:    event.Ticker,
		Date:      domain.NormalizeDate(date),
		Open:      decimal.NewFromFloat(event.Open),
		High:      decimal.NewFromFloat(event.High),
		Low:       decimal.NewFromFloat(event.Low),
		Close:     decimal.NewFromFloat(event.Close),
		Volume:    event.Volume,
		MarketCap: decimal.NewFromFloat(event.MarketCap),
	}, nil
}
