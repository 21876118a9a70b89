package repository

import (
	"context"

	"pixel-platformer/internal/domain"
)

// LeaderboardRepository 定义了从持久化进度数据聚合排行榜的查询。
// 读是最终一致的：刚提交的通关可能尚未反映在聚合结果里，
// 即时性由 Redis 的 pending delta 覆盖层补偿 (见 PresenceRepository)。
type LeaderboardRepository interface {
	// TopByWorld 聚合已通关记录的 reward_xp 总和，按总经验降序、
	// 玩家 ID 升序返回前 limit 名。worldID 为 domain.WorldAll 时全局聚合。
	TopByWorld(ctx context.Context, worldID uint, limit int) ([]domain.LeaderboardEntry, error)

	// PlayerTotal 返回单个玩家在指定范围内的总经验及用户名。
	// 玩家不存在时返回 ErrPlayerNotFound。
	PlayerTotal(ctx context.Context, worldID, playerID uint) (*domain.LeaderboardEntry, error)

	// RankOf 返回总经验严格高于 totalXp、或相等但玩家 ID 更小的玩家数量加一，
	// 即该经验值对应的 1-based 名次。
	RankOf(ctx context.Context, worldID uint, playerID uint, totalXp int) (int, error)
}
