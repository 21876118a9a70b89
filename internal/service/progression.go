package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// CompletionEvent 是一次成功通关后对外广播的事件载荷。
// 事件发射在事务边界之外，属于 best-effort 通知：发射失败只记日志，
// 绝不回滚已持久化的通关。
type CompletionEvent struct {
	PlayerID uint `json:"playerId"`
	WorldID  uint `json:"worldId"`
	LevelID  uint `json:"levelId"`
	RewardXp int  `json:"rewardXp"`
}

// CompletionNotifier 把通关事件交给排行榜投影方异步消费。
// 由 tasks 包的 asynq 入队器实现。
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, event CompletionEvent) error
}

// 瞬态存储错误 (死锁/锁等待超时) 的重试参数。
// 事务归本服务所有，重试也在这里做，不外溢给调用方。
const (
	completeMaxAttempts  = 3
	completeRetryBackoff = 50 * time.Millisecond
)

// ProgressionService 是通关判定的规则引擎：决定玩家能否把一个关卡
// 标记为已通关、发放奖励、并恰好一次地解锁下一关。
type ProgressionService struct {
	progressionRepo repository.ProgressionRepository
	worldRepo       repository.WorldRepository
	presenceRepo    repository.PresenceRepository
	notifier        CompletionNotifier
}

// NewProgressionService 创建 ProgressionService 实例。
// presenceRepo 和 notifier 可以为 nil (例如测试里只关心规则判定)。
func NewProgressionService(
	progressionRepo repository.ProgressionRepository,
	worldRepo repository.WorldRepository,
	presenceRepo repository.PresenceRepository,
	notifier CompletionNotifier,
) *ProgressionService {
	if progressionRepo == nil || worldRepo == nil {
		panic("ProgressionRepository and WorldRepository must be non-nil for ProgressionService")
	}
	return &ProgressionService{
		progressionRepo: progressionRepo,
		worldRepo:       worldRepo,
		presenceRepo:    presenceRepo,
		notifier:        notifier,
	}
}

// CompleteLevel 处理一次通关请求。
//
// 判定序列 (加锁读关卡 + 查重 + 查前置 + 写通关 + 写解锁) 在单个事务内
// 执行，关卡行持有行级锁，同一 (玩家, 关卡) 对的并发提交被串行化：
// 败者观察到已写入的通关记录，得到 ErrLevelAlreadyCompleted，
// 奖励至多发放一次。
//
// 错误: ErrLevelNotFound / ErrLevelAlreadyCompleted / ErrSequenceViolation
// 直接透传给调用方，不重试；瞬态存储错误带退避重试后仍失败则返回
// ErrInternalServer。
func (s *ProgressionService) CompleteLevel(ctx context.Context, playerID, levelID uint) (*domain.CompletionResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"player_id": playerID, "level_id": levelID})

	var result *domain.CompletionResult
	var worldID uint
	var err error
	for attempt := 1; attempt <= completeMaxAttempts; attempt++ {
		result, worldID, err = s.completeOnce(ctx, playerID, levelID)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrTransient) {
			// 业务错误：原样返回，调用方据此区分 404/400
			if errors.Is(err, ErrLevelNotFound) || errors.Is(err, ErrLevelAlreadyCompleted) || errors.Is(err, ErrSequenceViolation) {
				return nil, err
			}
			logCtx.WithError(err).Error("Completion transaction failed")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Warnf("Transient storage error on completion attempt %d, retrying", attempt)
		select {
		case <-time.After(completeRetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		logCtx.WithError(err).Error("Completion still failing after retries")
		return nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{
		"reward_xp":     result.RewardXp,
		"unlocked_next": result.UnlockedNextLevelID,
	}).Info("Level completed")

	// 事务提交之后的 best-effort 通知：乐观增量 + 排行榜刷新任务。
	// 失败只记日志，持久化状态才是事实来源。
	s.emitCompletion(ctx, CompletionEvent{
		PlayerID: playerID,
		WorldID:  worldID,
		LevelID:  levelID,
		RewardXp: result.RewardXp,
	})

	return result, nil
}

// completeOnce 执行一次通关事务，返回结果和关卡所属世界 ID。
func (s *ProgressionService) completeOnce(ctx context.Context, playerID, levelID uint) (*domain.CompletionResult, uint, error) {
	var result domain.CompletionResult
	var worldID uint

	err := s.progressionRepo.WithTx(ctx, func(tx repository.ProgressionRepository) error {
		// 1. 加行级锁读取关卡，并发的同关卡提交在此串行化
		level, err := tx.FindLevelForUpdate(ctx, levelID)
		if err != nil {
			if errors.Is(err, repository.ErrLevelNotFound) {
				return ErrLevelNotFound
			}
			return err
		}
		worldID = level.WorldID

		// 2. 查重：已通关的 (玩家, 关卡) 对不允许二次发奖
		done, err := tx.IsCompleted(ctx, playerID, levelID)
		if err != nil {
			return err
		}
		if done {
			return ErrLevelAlreadyCompleted
		}

		// 3. 查前置：OrderIdx > 0 的关卡要求前一关已通关
		if level.OrderIdx > 0 {
			prev, err := tx.FindLevelByOrder(ctx, level.WorldID, level.OrderIdx-1)
			if err != nil && !errors.Is(err, repository.ErrLevelNotFound) {
				return err
			}
			if err == nil {
				prevDone, err := tx.IsCompleted(ctx, playerID, prev.ID)
				if err != nil {
					return err
				}
				if !prevDone {
					return ErrSequenceViolation
				}
			}
			// 前一关不存在说明关卡图有洞，不因内容问题拒绝玩家
		}

		// 4. 写通关记录 (upsert，单向转换)
		if err := tx.MarkCompleted(ctx, playerID, levelID, time.Now().UTC()); err != nil {
			return err
		}

		// 5. 幂等地解锁下一关 (如果存在)
		next, err := tx.FindLevelByOrder(ctx, level.WorldID, level.OrderIdx+1)
		if err != nil && !errors.Is(err, repository.ErrLevelNotFound) {
			return err
		}
		if err == nil {
			if err := tx.InsertUnlock(ctx, playerID, next.ID); err != nil {
				return err
			}
			result.UnlockedNextLevelID = next.ID
		}

		result.RewardXp = level.RewardXp
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &result, worldID, nil
}

// emitCompletion 发射通关事件：写乐观增量、入队排行榜刷新任务。
func (s *ProgressionService) emitCompletion(ctx context.Context, event CompletionEvent) {
	logCtx := logrus.WithFields(logrus.Fields{
		"player_id": event.PlayerID,
		"world_id":  event.WorldID,
		"level_id":  event.LevelID,
	})
	if s.presenceRepo != nil {
		if err := s.presenceRepo.AddPendingDelta(ctx, event.WorldID, event.PlayerID, event.RewardXp); err != nil {
			logCtx.WithError(err).Warn("Failed to record pending leaderboard delta, skipping")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyCompletion(ctx, event); err != nil {
			logCtx.WithError(err).Warn("Failed to enqueue leaderboard refresh, skipping")
		}
	}
}

// GetUnlockedLevels 返回玩家视角的关卡列表：OrderIdx=0 的首关隐式解锁，
// 其余关卡以是否持有解锁授权为准，并带上完成标记。
func (s *ProgressionService) GetUnlockedLevels(ctx context.Context, playerID, worldID uint) ([]domain.PlayerLevel, error) {
	levels, err := s.progressionRepo.ListPlayerLevels(ctx, playerID, worldID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"player_id": playerID, "world_id": worldID}).
			Error("Failed to list player levels")
		return nil, ErrInternalServer
	}
	return levels, nil
}

// GetProgress 返回玩家的通关历史。
func (s *ProgressionService) GetProgress(ctx context.Context, playerID uint) ([]domain.PlayerProgress, error) {
	records, err := s.progressionRepo.ListCompleted(ctx, playerID)
	if err != nil {
		logrus.WithError(err).WithField("player_id", playerID).Error("Failed to list completed levels")
		return nil, ErrInternalServer
	}
	return records, nil
}

// UnlockWorld 幂等地为玩家解锁一个世界。
func (s *ProgressionService) UnlockWorld(ctx context.Context, playerID, worldID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"player_id": playerID, "world_id": worldID})

	if _, err := s.worldRepo.FindByID(ctx, worldID); err != nil {
		if errors.Is(err, repository.ErrWorldNotFound) {
			return ErrWorldNotFound
		}
		logCtx.WithError(err).Error("Failed to check world existence")
		return ErrInternalServer
	}

	if err := s.progressionRepo.InsertWorldUnlock(ctx, playerID, worldID); err != nil {
		logCtx.WithError(err).Error("Failed to insert world unlock")
		return ErrInternalServer
	}
	logCtx.Info("World unlocked")
	return nil
}
