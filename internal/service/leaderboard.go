package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// DefaultLeaderboardLimit 是排行榜查询的默认截断长度。
const DefaultLeaderboardLimit = 10

// LeaderboardService 维护按世界的排行榜投影：持久化聚合查询加上
// Redis 里的 pending delta 乐观覆盖层。聚合读是最终一致的，
// 覆盖层保证刚通关的玩家立刻能看到自己的新经验值。
type LeaderboardService struct {
	leaderboardRepo repository.LeaderboardRepository
	presenceRepo    repository.PresenceRepository
}

// NewLeaderboardService 创建 LeaderboardService 实例。
// presenceRepo 可以为 nil，此时没有覆盖层，读结果就是持久化聚合。
func NewLeaderboardService(leaderboardRepo repository.LeaderboardRepository, presenceRepo repository.PresenceRepository) *LeaderboardService {
	if leaderboardRepo == nil {
		panic("LeaderboardRepository cannot be nil for LeaderboardService")
	}
	return &LeaderboardService{
		leaderboardRepo: leaderboardRepo,
		presenceRepo:    presenceRepo,
	}
}

// GetLeaderboard 返回世界排行榜前 limit 名。
// worldID 为 domain.WorldAll 时做全局聚合；全局范围不套覆盖层
// (增量按世界记账，跨世界合并会重复计算)。
// 排序: TotalXp 降序，平局按 PlayerID 升序；名次在合并之后赋值。
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, worldID uint, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	logCtx := logrus.WithFields(logrus.Fields{"world_id": worldID, "limit": limit})

	entries, err := s.leaderboardRepo.TopByWorld(ctx, worldID, limit)
	if err != nil {
		logCtx.WithError(err).Error("Failed to query leaderboard aggregate")
		return nil, ErrInternalServer
	}

	if s.presenceRepo != nil && worldID != domain.WorldAll {
		entries = s.mergePendingDeltas(ctx, worldID, entries, logCtx)
	}

	domain.SortLeaderboard(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	domain.AssignRanks(entries)
	return entries, nil
}

// mergePendingDeltas 把乐观增量合入聚合结果。覆盖层是 best-effort：
// Redis 读失败时跳过合并，返回纯聚合结果。
func (s *LeaderboardService) mergePendingDeltas(ctx context.Context, worldID uint, entries []domain.LeaderboardEntry, logCtx *logrus.Entry) []domain.LeaderboardEntry {
	deltas, err := s.presenceRepo.GetPendingDeltas(ctx, worldID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to read pending deltas, serving aggregate only")
		return entries
	}
	if len(deltas) == 0 {
		return entries
	}

	for i := range entries {
		if delta, ok := deltas[entries[i].PlayerID]; ok {
			entries[i].TotalXp += delta
			delete(deltas, entries[i].PlayerID)
		}
	}
	// 榜上没有但持有增量的玩家 (通常是刚完成第一关的) 单独补查
	for playerID, delta := range deltas {
		entry, err := s.leaderboardRepo.PlayerTotal(ctx, worldID, playerID)
		if err != nil {
			logCtx.WithError(err).WithField("player_id", playerID).
				Warn("Failed to resolve player for pending delta, skipping")
			continue
		}
		entry.TotalXp += delta
		entries = append(entries, *entry)
	}
	return entries
}

// PlayerEntry 返回单个玩家的 best-effort 排行榜条目 (总经验 + 名次)。
// 通关成功后 Session Registry 用它向当事玩家即时推送，名次基于
// 持久化聚合计算，属于近似值，随后的整榜刷新会纠正。
func (s *LeaderboardService) PlayerEntry(ctx context.Context, worldID, playerID uint) (*domain.LeaderboardEntry, error) {
	logCtx := logrus.WithFields(logrus.Fields{"world_id": worldID, "player_id": playerID})

	entry, err := s.leaderboardRepo.PlayerTotal(ctx, worldID, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			return nil, ErrInternalServer // 已认证玩家查不到属于数据异常
		}
		logCtx.WithError(err).Error("Failed to query player total")
		return nil, ErrInternalServer
	}

	if s.presenceRepo != nil && worldID != domain.WorldAll {
		deltas, err := s.presenceRepo.GetPendingDeltas(ctx, worldID)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to read pending deltas for player entry, serving aggregate only")
		} else if delta, ok := deltas[playerID]; ok {
			entry.TotalXp += delta
		}
	}

	rank, err := s.leaderboardRepo.RankOf(ctx, worldID, playerID, entry.TotalXp)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to compute rank, leaving unranked")
		rank = 0
	}
	entry.Rank = rank
	return entry, nil
}

// RefreshWorld 重算世界排行榜并清除指定玩家的乐观增量。
// 排行榜刷新任务在通关事务提交之后才入队，此时持久化聚合
// 已覆盖该玩家的增量，可以安全清除。
func (s *LeaderboardService) RefreshWorld(ctx context.Context, worldID, playerID uint) ([]domain.LeaderboardEntry, error) {
	entries, err := s.leaderboardRepo.TopByWorld(ctx, worldID, DefaultLeaderboardLimit)
	if err != nil {
		return nil, err
	}
	domain.AssignRanks(entries)

	if s.presenceRepo != nil && playerID != 0 {
		if err := s.presenceRepo.ClearPendingDelta(ctx, worldID, playerID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"world_id": worldID, "player_id": playerID}).
				Warn("Failed to clear pending delta after refresh")
		}
	}
	return entries, nil
}

// ReconcileWorld 清掉世界的全部残留增量。周期性任务在确认持久化
// 聚合追上之后调用，防止失败路径留下的增量无限生效。
func (s *LeaderboardService) ReconcileWorld(ctx context.Context, worldID uint) error {
	if s.presenceRepo == nil {
		return nil
	}
	return s.presenceRepo.ClearAllPendingDeltas(ctx, worldID)
}
