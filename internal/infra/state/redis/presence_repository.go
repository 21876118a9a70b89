package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisPresenceRepository 是 PresenceRepository 接口的 Redis 实现。
// 所有 key 都是易失的：在线计数随加入/离开增减，pending delta 带 TTL
// 兜底，进程或 Redis 重启丢失这些数据不影响持久化的通关账本。
type RedisPresenceRepository struct {
	client    *redis.Client
	keyPrefix string
}

// pending delta 的兜底过期时间。正常路径由刷新任务显式清除，
// TTL 只防止刷新任务失联时 key 无限堆积。
const pendingDeltaTTL = 24 * time.Hour

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "pp:" // 默认前缀 "pp:" (pixel-platformer)
	}
	return &RedisPresenceRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisPresenceRepository) onlineKey(worldID uint) string {
	return fmt.Sprintf("%sworld:%d:online", r.keyPrefix, worldID)
}

func (r *RedisPresenceRepository) pendingDeltaKey(worldID uint) string {
	return fmt.Sprintf("%sworld:%d:lb_pending", r.keyPrefix, worldID)
}

// --- Online Counters ---

// IncrOnline 原子地增加世界的在线人数
func (r *RedisPresenceRepository) IncrOnline(ctx context.Context, worldID uint) (int64, error) {
	key := r.onlineKey(worldID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to incr online count for world %d on key %s: %w", worldID, key, err)
	}
	return count, nil
}

// DecrOnline 原子地减少世界的在线人数，计数不会降到 0 以下
func (r *RedisPresenceRepository) DecrOnline(ctx context.Context, worldID uint) (int64, error) {
	key := r.onlineKey(worldID)
	count, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to decr online count for world %d on key %s: %w", worldID, key, err)
	}
	if count < 0 {
		// 计数偏差 (例如进程重启后残留的 key)，归零并记录
		logrus.WithFields(logrus.Fields{"world_id": worldID, "count": count}).
			Warn("Online counter went negative, resetting to zero")
		if err := r.client.Set(ctx, key, "0", 0).Err(); err != nil {
			return 0, fmt.Errorf("redis: failed to reset online count for world %d: %w", worldID, err)
		}
		return 0, nil
	}
	return count, nil
}

// GetOnline 返回世界当前的在线人数
func (r *RedisPresenceRepository) GetOnline(ctx context.Context, worldID uint) (int64, error) {
	key := r.onlineKey(worldID)
	countStr, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil // key 不存在视为 0 人在线
		}
		return 0, fmt.Errorf("redis: failed to get online count for world %d from %s: %w", worldID, key, err)
	}
	count, parseErr := strconv.ParseInt(countStr, 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("redis: failed to parse online count '%s' for world %d: %w", countStr, worldID, parseErr)
	}
	return count, nil
}

// --- Pending Leaderboard Deltas ---

// AddPendingDelta 为 (worldID, playerID) 累加乐观经验增量
func (r *RedisPresenceRepository) AddPendingDelta(ctx context.Context, worldID, playerID uint, xp int) error {
	key := r.pendingDeltaKey(worldID)
	field := strconv.FormatUint(uint64(playerID), 10)
	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, field, int64(xp))
	pipe.Expire(ctx, key, pendingDeltaTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis: failed to add pending delta for player %d in world %d: %w", playerID, worldID, err)
	}
	return nil
}

// GetPendingDeltas 返回世界内所有未清除的增量
func (r *RedisPresenceRepository) GetPendingDeltas(ctx context.Context, worldID uint) (map[uint]int, error) {
	key := r.pendingDeltaKey(worldID)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get pending deltas for world %d from %s: %w", worldID, key, err)
	}
	deltas := make(map[uint]int, len(raw))
	for field, value := range raw {
		playerID, errP := strconv.ParseUint(field, 10, 32)
		xp, errX := strconv.Atoi(value)
		if errP != nil || errX != nil {
			logrus.Warnf("redis: skipping malformed pending delta entry %s=%s for world %d", field, value, worldID)
			continue
		}
		deltas[uint(playerID)] = xp
	}
	return deltas, nil
}

// ClearPendingDelta 清除单个玩家的增量
func (r *RedisPresenceRepository) ClearPendingDelta(ctx context.Context, worldID, playerID uint) error {
	key := r.pendingDeltaKey(worldID)
	field := strconv.FormatUint(uint64(playerID), 10)
	if err := r.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear pending delta for player %d in world %d: %w", playerID, worldID, err)
	}
	return nil
}

// ClearAllPendingDeltas 清除世界的全部增量
func (r *RedisPresenceRepository) ClearAllPendingDeltas(ctx context.Context, worldID uint) error {
	key := r.pendingDeltaKey(worldID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear pending deltas for world %d: %w", worldID, err)
	}
	return nil
}

// --- Rate Limiting ---

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisPresenceRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	// 使用 Pipeline 减少网络往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, duration)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}
