package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// GormWorldRepository 是 WorldRepository 接口的 GORM 实现
type GormWorldRepository struct {
	db *gorm.DB
}

// NewGormWorldRepository 创建 GormWorldRepository 实例
func NewGormWorldRepository(db *gorm.DB) *GormWorldRepository {
	if db == nil {
		panic("database connection cannot be nil for GormWorldRepository")
	}
	return &GormWorldRepository{db: db}
}

// FindByID 实现根据世界 ID 查找世界
func (r *GormWorldRepository) FindByID(ctx context.Context, id uint) (*domain.World, error) {
	var world domain.World
	err := r.db.WithContext(ctx).First(&world, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrWorldNotFound
		}
		return nil, fmt.Errorf("gorm: find world by id %d: %w", id, err)
	}
	return &world, nil
}

// FindAll 实现按 ID 升序返回所有世界
func (r *GormWorldRepository) FindAll(ctx context.Context) ([]domain.World, error) {
	var worlds []domain.World
	err := r.db.WithContext(ctx).Order("id ASC").Find(&worlds).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find all worlds: %w", err)
	}
	return worlds, nil
}
