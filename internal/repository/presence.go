package repository

import (
	"context"
	"time"
)

// PresenceRepository 定义了与实时层相关的易失状态操作，由 Redis 实现。
// 这里的数据没有持久化保证，进程重启即丢失 (presence 数据按设计不durable)。
type PresenceRepository interface {
	// === Online Counters ===

	// IncrOnline 原子地增加世界的在线人数并返回新值。
	IncrOnline(ctx context.Context, worldID uint) (int64, error)

	// DecrOnline 原子地减少世界的在线人数并返回新值，不会降到 0 以下。
	DecrOnline(ctx context.Context, worldID uint) (int64, error)

	// GetOnline 返回世界当前的在线人数，key 不存在视为 0。
	GetOnline(ctx context.Context, worldID uint) (int64, error)

	// === Pending Leaderboard Deltas ===
	// 通关提交后、持久化聚合追上之前的乐观经验增量覆盖层。
	// 读取排行榜时合并，后台刷新任务确认聚合覆盖后清除。

	// AddPendingDelta 为 (worldID, playerID) 累加经验增量。
	AddPendingDelta(ctx context.Context, worldID, playerID uint, xp int) error

	// GetPendingDeltas 返回世界内所有未清除的增量 (playerID -> xp)。
	GetPendingDeltas(ctx context.Context, worldID uint) (map[uint]int, error)

	// ClearPendingDelta 清除单个玩家的增量，不存在时是 no-op。
	ClearPendingDelta(ctx context.Context, worldID, playerID uint) error

	// ClearAllPendingDeltas 清除世界的全部增量 (周期性对账任务使用)。
	ClearAllPendingDeltas(ctx context.Context, worldID uint) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限，false 如果未超限。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)
}
