package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"golang.org/x/sync/errgroup"

	persistence_ch "github.com/wyfcoding/equityindex/internal/index/infrastructure/persistence/clickhouse"
	"github.com/wyfcoding/equityindex/internal/index/interfaces/events"
	"github.com/wyfcoding/equityindex/pkg/config"
	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/metrics"
	"github.com/wyfcoding/equityindex/pkg/mq"
)

var configPath = flag.String("config", "configs/ingester/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 3. Metrics
	metricsImpl := metrics.New("ingester")
	if err := metricsImpl.Register(); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. ClickHouse (market store)
	ckConn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.ClickHouse.Addrs,
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		DialTimeout: time.Duration(cfg.ClickHouse.DialTimeout) * time.Second,
	})
	if err != nil {
		slog.Error("failed to connect clickhouse", "error", err)
		os.Exit(1)
	}
	marketRepo := persistence_ch.NewMarketRepository(ckConn)

	// 5. Kafka consumers
	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}
	barsConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.BarsTopic)
	defer barsConsumer.Close()
	tickersConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.TickersTopic)
	defer tickersConsumer.Close()

	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()
	deadLetters := events.NewDeadLetterQueue(producer, cfg.Kafka.DeadLetterTopic)

	flushInterval := time.Duration(cfg.Kafka.FlushInterval) * time.Second
	barIngest := events.NewBarConsumer(barsConsumer, marketRepo, metricsImpl, deadLetters, cfg.Kafka.BatchSize, flushInterval)
	metadataIngest := events.NewMetadataConsumer(tickersConsumer, marketRepo, deadLetters, cfg.Kafka.BatchSize, flushInterval)

	// 6. Start
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("bar ingester starting", "topic", cfg.Kafka.BarsTopic, "group", cfg.Kafka.GroupID)
		return barIngest.Run(ctx)
	})

	g.Go(func() error {
		slog.Info("metadata ingester starting", "topic", cfg.Kafka.TickersTopic, "group", cfg.Kafka.GroupID)
		return metadataIngest.Run(ctx)
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down ingester...")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("ingester exited with error", "error", err)
		os.Exit(1)
	}
}
