package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// GormLevelRepository 是 LevelRepository 接口的 GORM 实现
type GormLevelRepository struct {
	db *gorm.DB
}

// NewGormLevelRepository 创建 GormLevelRepository 实例
func NewGormLevelRepository(db *gorm.DB) *GormLevelRepository {
	if db == nil {
		panic("database connection cannot be nil for GormLevelRepository")
	}
	return &GormLevelRepository{db: db}
}

// FindByID 实现根据关卡 ID 查找关卡
func (r *GormLevelRepository) FindByID(ctx context.Context, id uint) (*domain.Level, error) {
	var level domain.Level
	err := r.db.WithContext(ctx).First(&level, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLevelNotFound
		}
		return nil, fmt.Errorf("gorm: find level by id %d: %w", id, err)
	}
	return &level, nil
}

// FindByWorld 实现按 OrderIdx 升序返回指定世界的全部关卡
func (r *GormLevelRepository) FindByWorld(ctx context.Context, worldID uint) ([]domain.Level, error) {
	var levels []domain.Level
	err := r.db.WithContext(ctx).
		Where("world_id = ?", worldID).
		Order("order_idx ASC").
		Find(&levels).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find levels for world %d: %w", worldID, err)
	}
	return levels, nil
}
