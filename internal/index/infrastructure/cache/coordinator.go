// Package cache 指数快照的读穿透缓存协调器。
// 缓存未命中时按日期互斥地计算并持久化，抑制同一日期的并发重复计算。
package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/equityindex/internal/index/domain"
	"github.com/wyfcoding/equityindex/pkg/logger"
	"github.com/wyfcoding/equityindex/pkg/metrics"
)

// Computer 按日期计算指数快照的能力
type Computer interface {
	Compute(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error)
}

// Options 协调器参数
type Options struct {
	// LockTTL 跨进程计算租约的有效期
	LockTTL time.Duration
	// WaitTimeout 等待他人完成计算的上限
	WaitTimeout time.Duration
	// PollInterval 等锁期间轮询缓存/存储的间隔
	PollInterval time.Duration
}

// Coordinator 读穿透缓存协调器。
// 进程内用 singleflight 合并同一日期的并发请求，跨进程用 Redis 租约互斥；
// 存储是事实来源，缓存只是读加速器。
type Coordinator struct {
	cache   domain.SnapshotCache
	lock    domain.DateLock
	results domain.IndexResultRepository
	calc    Computer
	metrics *metrics.Metrics

	group        singleflight.Group
	lockTTL      time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewCoordinator 创建协调器实例。metrics 可为 nil。
func NewCoordinator(
	cache domain.SnapshotCache,
	lock domain.DateLock,
	results domain.IndexResultRepository,
	calc Computer,
	m *metrics.Metrics,
	opts Options,
) *Coordinator {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &Coordinator{
		cache:        cache,
		lock:         lock,
		results:      results,
		calc:         calc,
		metrics:      m,
		lockTTL:      opts.LockTTL,
		waitTimeout:  opts.WaitTimeout,
		pollInterval: opts.PollInterval,
	}
}

// GetOrCompute 返回某日的指数快照：缓存命中直接返回，
// 未命中时由唯一的计算者读存储或计算并回填，其余调用方等待其结果。
// 等待超过 WaitTimeout 返回 ErrComputationTimeout。
func (c *Coordinator) GetOrCompute(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error) {
	date = domain.NormalizeDate(date)

	if snapshot := c.cacheGet(ctx, date); snapshot != nil {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return snapshot, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	// The fill runs on a context detached from the caller: an abandoned
	// request must not abort a computation other waiters depend on.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(domain.DateKey(date), func() (any, error) {
		return c.fill(flightCtx, date)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.IndexSnapshot), nil
	case <-time.After(c.waitTimeout):
		if c.metrics != nil {
			c.metrics.LockWaitTimeoutsTotal.Inc()
		}
		return nil, domain.ErrComputationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill 是每个日期同一时刻至多运行一个的填充路径
func (c *Coordinator) fill(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error) {
	// double-check：进入 flight 前可能已有人回填
	if snapshot := c.cacheGet(ctx, date); snapshot != nil {
		return snapshot, nil
	}

	acquired, err := c.acquireLock(ctx, date)
	if err != nil {
		var ready errSnapshotReady
		if errors.As(err, &ready) {
			return ready.snapshot, nil
		}
		return nil, err
	}
	if acquired {
		defer func() {
			if err := c.lock.Release(context.WithoutCancel(ctx), date); err != nil {
				logger.Warn(ctx, "failed to release date lock", "date", domain.DateKey(date), "error", err)
			}
		}()
	}

	if snapshot := c.cacheGet(ctx, date); snapshot != nil {
		return snapshot, nil
	}

	// 存储可能已有先前进程写入的结果
	queryStart := time.Now()
	snapshot, err := c.results.Get(ctx, date)
	if c.metrics != nil {
		c.metrics.StoreQueryDuration.Observe(time.Since(queryStart).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		c.cacheSet(ctx, snapshot)
		return snapshot, nil
	}

	start := time.Now()
	snapshot, err = c.calc.Compute(ctx, date)
	if err != nil {
		// 计算失败不进缓存，锁随 defer 释放，后续请求可重试
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.ComputationsTotal.Inc()
		c.metrics.ComputationDuration.Observe(time.Since(start).Seconds())
	}

	if err := c.results.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	c.cacheSet(ctx, snapshot)
	return snapshot, nil
}

// acquireLock 获取跨进程租约。持有者在别处时轮询等待其结果；
// 锁后端不可用时降级为仅进程内互斥。
// 返回 (true, nil) 表示拿到租约，(false, nil) 表示无租约但可继续。
func (c *Coordinator) acquireLock(ctx context.Context, date time.Time) (bool, error) {
	deadline := time.Now().Add(c.waitTimeout)
	for {
		ok, err := c.lock.Acquire(ctx, date, c.lockTTL)
		if err != nil {
			logger.Warn(ctx, "date lock backend unavailable, proceeding without lease",
				"date", domain.DateKey(date), "error", err)
			if c.metrics != nil {
				c.metrics.CacheDegradedTotal.Inc()
			}
			return false, nil
		}
		if ok {
			return true, nil
		}

		// 别的进程持有租约：等待其结果出现在缓存或存储中
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		if snapshot := c.cacheGet(ctx, date); snapshot != nil {
			return false, errSnapshotReady{snapshot}
		}
		snapshot, err := c.results.Get(ctx, date)
		if err != nil {
			// 存储不可用时等不到持有者的结果，直接把故障交给调用方
			return false, err
		}
		if snapshot != nil {
			c.cacheSet(ctx, snapshot)
			return false, errSnapshotReady{snapshot}
		}
		if time.Now().After(deadline) {
			if c.metrics != nil {
				c.metrics.LockWaitTimeoutsTotal.Inc()
			}
			return false, domain.ErrComputationTimeout
		}
	}
}

// errSnapshotReady 在等锁期间拿到结果时用于提前返回
type errSnapshotReady struct {
	snapshot *domain.IndexSnapshot
}

func (errSnapshotReady) Error() string { return "snapshot became available while waiting" }

// cacheGet 读缓存；缓存后端故障时记录告警并当作未命中，绝不让请求失败
func (c *Coordinator) cacheGet(ctx context.Context, date time.Time) *domain.IndexSnapshot {
	if c.cache == nil {
		return nil
	}
	snapshot, err := c.cache.Get(ctx, date)
	if err != nil {
		logger.Warn(ctx, "snapshot cache unavailable, falling through to store",
			"date", domain.DateKey(date), "error", err)
		if c.metrics != nil {
			c.metrics.CacheDegradedTotal.Inc()
		}
		return nil
	}
	return snapshot
}

// cacheSet 回填缓存；失败只损失后续读加速，不影响请求结果
func (c *Coordinator) cacheSet(ctx context.Context, snapshot *domain.IndexSnapshot) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, snapshot); err != nil {
		logger.Warn(ctx, "failed to populate snapshot cache",
			"date", domain.DateKey(snapshot.Date()), "error", err)
	}
}
