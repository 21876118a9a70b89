package repository

import (
	"context"

	"pixel-platformer/internal/domain"
)

// WorldRepository 定义了世界内容的只读检索。
// 世界/关卡内容由内容协作方创建，这里不提供写入。
type WorldRepository interface {
	// FindByID 根据世界 ID 查找世界。
	// 如果世界不存在，应返回 repository.ErrWorldNotFound。
	FindByID(ctx context.Context, id uint) (*domain.World, error)

	// FindAll 按 ID 升序返回所有世界。
	FindAll(ctx context.Context) ([]domain.World, error)
}

// LevelRepository 定义了关卡图 (每个世界的有序关卡序列) 的只读检索。
type LevelRepository interface {
	// FindByID 根据关卡 ID 查找关卡。
	// 如果关卡不存在，应返回 repository.ErrLevelNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Level, error)

	// FindByWorld 按 OrderIdx 升序返回指定世界的全部关卡。
	FindByWorld(ctx context.Context, worldID uint) ([]domain.Level, error)
}
