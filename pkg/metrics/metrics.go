// Package metrics 提供 Prometheus helper，包含本服务常用的 counter/gauge/histogram
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/equityindex/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数（按路由和状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 缓存命中计数
	CacheHitsTotal prometheus.Counter
	// 缓存未命中计数
	CacheMissesTotal prometheus.Counter
	// 缓存降级计数（缓存后端不可用，直接走存储）
	CacheDegradedTotal prometheus.Counter

	// 指数计算次数
	ComputationsTotal prometheus.Counter
	// 指数计算耗时
	ComputationDuration prometheus.Histogram
	// 等待他人计算超时次数
	LockWaitTimeoutsTotal prometheus.Counter

	// 存储查询耗时
	StoreQueryDuration prometheus.Histogram
	// 摄入的行情条数
	BarsIngestedTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "cache_hits_total",
			Help:      "Snapshot cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "cache_misses_total",
			Help:      "Snapshot cache misses",
		}),
		CacheDegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "cache_degraded_total",
			Help:      "Requests served without the cache backend",
		}),
		ComputationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "computations_total",
			Help:      "Index computations performed",
		}),
		ComputationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "computation_duration_seconds",
			Help:      "Index computation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LockWaitTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "lock_wait_timeouts_total",
			Help:      "Timed out waits for a per-date computation lock",
		}),
		StoreQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "store_query_duration_seconds",
			Help:      "Store query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		BarsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equityindex",
			Subsystem: serviceName,
			Name:      "bars_ingested_total",
			Help:      "Price bars written to the market store",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheDegradedTotal,
		m.ComputationsTotal,
		m.ComputationDuration,
		m.LockWaitTimeoutsTotal,
		m.StoreQueryDuration,
		m.BarsIngestedTotal,
	}
	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "starting metrics server", "addr", addr, "path", path)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "metrics server exited", "error", err)
		}
	}()
}
