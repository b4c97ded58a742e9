package domain

import (
	"context"
	"time"
)

// MarketDataRepository 行情存储（列式库）的只读访问接口
type MarketDataRepository interface {
	// GetPriceBars 返回某个交易日所有活跃股票的行情，无数据时返回空切片
	GetPriceBars(ctx context.Context, date time.Time) ([]PriceBar, error)
	// GetMetadata 按股票代码点查元数据，不存在时返回 (nil, nil)
	GetMetadata(ctx context.Context, ticker string) (*TickerMetadata, error)
	// LatestTradingDate 返回已摄入行情的最近交易日，库为空时返回零值
	LatestTradingDate(ctx context.Context) (time.Time, error)
}

// IndexResultRepository 指数结果与成分的持久化接口。
// Save 必须保证结果行与全部成分行在同一事务内写入。
type IndexResultRepository interface {
	// Get 按日期读取快照（结果 + 完整成分），不存在时返回 (nil, nil)
	Get(ctx context.Context, date time.Time) (*IndexSnapshot, error)
	// Save 原子写入某日的快照，重复写入时整体覆盖
	Save(ctx context.Context, snapshot *IndexSnapshot) error
	// GetLatestBefore 返回严格早于 date 的最近一条结果，不存在时返回 (nil, nil)
	GetLatestBefore(ctx context.Context, date time.Time) (*IndexResult, error)
	// ListResults 返回 [start, end] 范围内已计算的结果，按日期升序
	ListResults(ctx context.Context, start, end time.Time) ([]IndexResult, error)
	// ListComposition 返回 [start, end] 范围内的成分行，按日期升序
	ListComposition(ctx context.Context, start, end time.Time) ([]CompositionEntry, error)
}

// SnapshotCache 快照的键值缓存。缓存只是读加速器，存储才是事实来源。
type SnapshotCache interface {
	// Get 按日期读取缓存的快照，未命中或已过期时返回 (nil, nil)
	Get(ctx context.Context, date time.Time) (*IndexSnapshot, error)
	// Set 带 TTL 写入快照
	Set(ctx context.Context, snapshot *IndexSnapshot) error
	// Delete 删除某日的缓存
	Delete(ctx context.Context, date time.Time) error
}

// DateLock 按日期键作用域的互斥租约，用于跨进程抑制重复计算
type DateLock interface {
	// Acquire 尝试获取某日的计算租约，返回是否成功
	Acquire(ctx context.Context, date time.Time, ttl time.Duration) (bool, error)
	// Release 释放某日的租约
	Release(ctx context.Context, date time.Time) error
}
