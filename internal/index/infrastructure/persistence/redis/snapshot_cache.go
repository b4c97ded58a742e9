// Package redis 指数快照的读加速缓存与按日期的计算租约
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// SnapshotCache 基于 Redis 的快照缓存，键形如 index:{ISO-date}
type SnapshotCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSnapshotCache 创建快照缓存实例
func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotCache{
		client: client,
		prefix: "index:",
		ttl:    ttl,
	}
}

func (c *SnapshotCache) key(date time.Time) string {
	return c.prefix + domain.DateKey(date)
}

// Get 按日期读取缓存的快照，未命中时返回 (nil, nil)
func (c *SnapshotCache) Get(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(date)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot domain.IndexSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Set 带 TTL 写入快照
func (c *SnapshotCache) Set(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key(snapshot.Date()), data, c.ttl).Err()
}

// Delete 删除某日的缓存
func (c *SnapshotCache) Delete(ctx context.Context, date time.Time) error {
	return c.client.Del(ctx, c.key(date)).Err()
}

// DateLock 基于 SETNX 租约的按日期分布式锁
type DateLock struct {
	client redis.UniversalClient
	prefix string
}

// NewDateLock 创建日期锁实例
func NewDateLock(client redis.UniversalClient) *DateLock {
	return &DateLock{
		client: client,
		prefix: "index:lock:",
	}
}

// Acquire 尝试获取某日的计算租约。租约带 TTL，持有者崩溃后自动过期。
func (l *DateLock) Acquire(ctx context.Context, date time.Time, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+domain.DateKey(date), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire date lock: %w", err)
	}
	return ok, nil
}

// Release 释放某日的租约
func (l *DateLock) Release(ctx context.Context, date time.Time) error {
	return l.client.Del(ctx, l.prefix+domain.DateKey(date)).Err()
}
