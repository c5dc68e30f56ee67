package cache

import (
	"context"
	"fmt"
	"time"

	"TrackShelf/logger"

	"github.com/redis/go-redis/v9"
)

const repairLockPrefix = "trackshelf:repair:"

// DefaultRepairLockTTL 锁过期时间，覆盖一次写回的耗时即可
const DefaultRepairLockTTL = 30 * time.Second

// RepairLock 防止多个请求（或多个实例）同时为同一 track 写回路径。
// 零值或 client 为 nil 时始终放行。
type RepairLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepairLock 创建路径写回锁；client 可以为 nil
func NewRepairLock(client *redis.Client, ttl time.Duration) *RepairLock {
	if ttl <= 0 {
		ttl = DefaultRepairLockTTL
	}
	return &RepairLock{client: client, ttl: ttl}
}

// RepairLockKey 返回 track 对应的锁 key
func RepairLockKey(trackID string) string {
	return repairLockPrefix + trackID
}

// TryLock 尝试获取 track 的写回锁。返回 false 表示其他请求正在写回。
func (l *RepairLock) TryLock(ctx context.Context, trackID string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, RepairLockKey(trackID), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire repair lock: %w", err)
	}
	if !ok {
		logger.Debug("路径写回已在进行中",
			logger.String("trackId", trackID))
	}
	return ok, nil
}

// Unlock 释放写回锁
func (l *RepairLock) Unlock(ctx context.Context, trackID string) {
	if l == nil || l.client == nil {
		return
	}
	if err := l.client.Del(ctx, RepairLockKey(trackID)).Err(); err != nil {
		logger.Warn("释放路径写回锁失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
	}
}
