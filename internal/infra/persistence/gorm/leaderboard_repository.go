package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// GormLeaderboardRepository 是 LeaderboardRepository 接口的 GORM 实现。
// 排行榜是从已通关的 player_progress 记录聚合出来的派生视图，
// 这里只读，不维护任何榜单表。
type GormLeaderboardRepository struct {
	db *gorm.DB
}

// NewGormLeaderboardRepository 创建 GormLeaderboardRepository 实例
func NewGormLeaderboardRepository(db *gorm.DB) *GormLeaderboardRepository {
	if db == nil {
		panic("database connection cannot be nil for GormLeaderboardRepository")
	}
	return &GormLeaderboardRepository{db: db}
}

// TopByWorld 实现世界范围的总经验聚合。
// 平局按 player_id 升序，保证结果确定 (与 domain.SortLeaderboard 一致)。
func (r *GormLeaderboardRepository) TopByWorld(ctx context.Context, worldID uint, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10 // 默认取前 10 名
	}
	query := r.db.WithContext(ctx).
		Table("players AS p").
		Select("p.id AS player_id, p.username, COALESCE(SUM(l.reward_xp), 0) AS total_xp").
		Joins("LEFT JOIN player_progress pp ON pp.player_id = p.id AND pp.completed = ?", true).
		Joins("LEFT JOIN levels l ON l.id = pp.level_id")
	if worldID != domain.WorldAll {
		query = query.Where("l.world_id = ?", worldID)
	}
	var entries []domain.LeaderboardEntry
	err := query.Group("p.id, p.username").
		Order("total_xp DESC, player_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: leaderboard top for world %d: %w", worldID, err)
	}
	return entries, nil
}

// PlayerTotal 实现单玩家的总经验查询
func (r *GormLeaderboardRepository) PlayerTotal(ctx context.Context, worldID, playerID uint) (*domain.LeaderboardEntry, error) {
	query := r.db.WithContext(ctx).
		Table("players AS p").
		Select("p.id AS player_id, p.username, COALESCE(SUM(l.reward_xp), 0) AS total_xp").
		Joins("LEFT JOIN player_progress pp ON pp.player_id = p.id AND pp.completed = ?", true)
	// 世界过滤必须放在 JOIN 条件里：WHERE 过滤会把只在别的世界有
	// 通关记录的玩家整行筛掉，而这里要的是该玩家在本世界的 0 分条目。
	if worldID != domain.WorldAll {
		query = query.Joins("LEFT JOIN levels l ON l.id = pp.level_id AND l.world_id = ?", worldID)
	} else {
		query = query.Joins("LEFT JOIN levels l ON l.id = pp.level_id")
	}
	var entry domain.LeaderboardEntry
	result := query.Where("p.id = ?", playerID).
		Group("p.id, p.username").
		Scan(&entry)
	if result.Error != nil {
		return nil, fmt.Errorf("gorm: leaderboard total for player %d: %w", playerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, repository.ErrPlayerNotFound
	}
	return &entry, nil
}

// RankOf 实现名次计算：比 (totalXp, playerID) 排得更靠前的玩家数量加一。
// 与 TopByWorld 的排序键一致：总经验降序，平局按玩家 ID 升序。
func (r *GormLeaderboardRepository) RankOf(ctx context.Context, worldID uint, playerID uint, totalXp int) (int, error) {
	sub := r.db.
		Table("players AS p").
		Select("p.id AS player_id, COALESCE(SUM(l.reward_xp), 0) AS total_xp").
		Joins("LEFT JOIN player_progress pp ON pp.player_id = p.id AND pp.completed = ?", true).
		Joins("LEFT JOIN levels l ON l.id = pp.level_id")
	if worldID != domain.WorldAll {
		sub = sub.Where("l.world_id = ?", worldID)
	}
	sub = sub.Group("p.id")

	var ahead int64
	err := r.db.WithContext(ctx).
		Table("(?) AS totals", sub).
		Where("totals.total_xp > ? OR (totals.total_xp = ? AND totals.player_id < ?)", totalXp, totalXp, playerID).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: leaderboard rank for player %d in world %d: %w", playerID, worldID, err)
	}
	return int(ahead) + 1, nil
}
