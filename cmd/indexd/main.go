package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/equityindex/internal/index/application"
	"github.com/wyfcoding/equityindex/internal/index/domain"
	idxcache "github.com/wyfcoding/equityindex/internal/index/infrastructure/cache"
	persistence_ch "github.com/wyfcoding/equityindex/internal/index/infrastructure/persistence/clickhouse"
	persistence_mysql "github.com/wyfcoding/equityindex/internal/index/infrastructure/persistence/mysql"
	persistence_redis "github.com/wyfcoding/equityindex/internal/index/infrastructure/persistence/redis"
	httpserver "github.com/wyfcoding/equityindex/internal/index/interfaces/http"
	"github.com/wyfcoding/equityindex/pkg/config"
	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/metrics"
)

var configPath = flag.String("config", "configs/indexd/config.toml", "config file path")

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
	metricsImpl := metrics.New("indexd")
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

	// 5. MySQL (result store)
	db, err := gorm.Open(gorm_mysql.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}
	if cfg.Environment == "dev" {
		if err := db.AutoMigrate(&persistence_mysql.IndexResultModel{}, &persistence_mysql.CompositionModel{}); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 6. Redis (snapshot cache + date lock)
	redisClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.MaxPoolSize,
		ReadTimeout:  time.Duration(cfg.Redis.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Redis.WriteTimeout) * time.Second,
	})
	defer redisClient.Close()

	// 7. Repositories & services
	marketRepo := persistence_ch.NewMarketRepository(ckConn)
	resultRepo := persistence_mysql.NewResultRepository(db)
	snapshotCache := persistence_redis.NewSnapshotCache(redisClient, time.Duration(cfg.Index.CacheTTL)*time.Second)
	dateLock := persistence_redis.NewDateLock(redisClient)

	calculator := domain.NewIndexCalculator(marketRepo, resultRepo, cfg.Index.UniverseSize)
	coordinator := idxcache.NewCoordinator(snapshotCache, dateLock, resultRepo, calculator, metricsImpl, idxcache.Options{
		LockTTL:     time.Duration(cfg.Index.LockTTL) * time.Second,
		WaitTimeout: time.Duration(cfg.Index.LockWaitTimeout) * time.Second,
	})
	queryService := application.NewIndexQueryService(marketRepo, resultRepo, coordinator, cfg.Index.RangeParallelism)

	// 8. HTTP interface
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), httpserver.MetricsMiddleware(metricsImpl))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := httpserver.NewIndexHandler(queryService)
	handler.RegisterRoutes(r.Group("/api"))

	// 9. Start
	g, ctx := errgroup.WithContext(context.Background())

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down server...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
