package repository

import (
	"context"
	"time"

	"pixel-platformer/internal/domain"
)

// ProgressionRepository 定义了玩家通关/解锁进度的持久化操作。
//
// 通关判定需要 "加锁读关卡 + 检查重复 + 检查前置 + 写通关 + 写解锁"
// 作为一个原子单元执行，因此接口暴露 WithTx：回调内拿到的仓库实例
// 绑定同一个数据库事务，回调返回错误则整体回滚。
type ProgressionRepository interface {
	// WithTx 在单个事务中执行 fn。fn 内对传入仓库的所有调用共享该事务。
	WithTx(ctx context.Context, fn func(tx ProgressionRepository) error) error

	// FindLevelForUpdate 加行级锁 (SELECT ... FOR UPDATE) 读取关卡，
	// 使同一关卡的并发通关尝试串行化。只允许在 WithTx 回调内调用。
	// 关卡不存在时返回 ErrLevelNotFound。
	FindLevelForUpdate(ctx context.Context, levelID uint) (*domain.Level, error)

	// FindLevelByOrder 查找世界内指定顺序索引的关卡。
	// 不存在时返回 ErrLevelNotFound (例如查询最后一关的下一关)。
	FindLevelByOrder(ctx context.Context, worldID uint, orderIdx int) (*domain.Level, error)

	// IsCompleted 报告玩家是否已通关指定关卡。
	IsCompleted(ctx context.Context, playerID, levelID uint) (bool, error)

	// MarkCompleted 将 (playerID, levelID) 的进度记录写为已通关 (upsert)。
	// 已通关的记录不会被覆盖为未通关，完成是单向转换。
	MarkCompleted(ctx context.Context, playerID, levelID uint, at time.Time) error

	// InsertUnlock 为 (playerID, levelID) 插入解锁授权。
	// 幂等：已存在时是 no-op，不返回错误。
	InsertUnlock(ctx context.Context, playerID, levelID uint) error

	// InsertWorldUnlock 为 (playerID, worldID) 插入世界解锁授权 (幂等)。
	InsertWorldUnlock(ctx context.Context, playerID, worldID uint) error

	// ListPlayerLevels 返回玩家视角的关卡列表 (含完成/解锁标记)。
	// worldID 为 domain.WorldAll 时不过滤世界。
	ListPlayerLevels(ctx context.Context, playerID, worldID uint) ([]domain.PlayerLevel, error)

	// ListCompleted 返回玩家的全部已通关记录，按世界和顺序索引排序。
	ListCompleted(ctx context.Context, playerID uint) ([]domain.PlayerProgress, error)
}
