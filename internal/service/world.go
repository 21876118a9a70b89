package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// WorldService 提供世界/关卡内容的只读查询。
// 内容本身由内容协作方维护，这里只是消费方。
type WorldService struct {
	worldRepo repository.WorldRepository
	levelRepo repository.LevelRepository
}

// NewWorldService 创建 WorldService 实例。
func NewWorldService(worldRepo repository.WorldRepository, levelRepo repository.LevelRepository) *WorldService {
	if worldRepo == nil || levelRepo == nil {
		panic("WorldRepository and LevelRepository must be non-nil for WorldService")
	}
	return &WorldService{worldRepo: worldRepo, levelRepo: levelRepo}
}

// ListWorlds 返回所有世界。
func (s *WorldService) ListWorlds(ctx context.Context) ([]domain.World, error) {
	worlds, err := s.worldRepo.FindAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list worlds")
		return nil, ErrInternalServer
	}
	return worlds, nil
}

// GetWorld 返回单个世界。
func (s *WorldService) GetWorld(ctx context.Context, worldID uint) (*domain.World, error) {
	world, err := s.worldRepo.FindByID(ctx, worldID)
	if err != nil {
		if errors.Is(err, repository.ErrWorldNotFound) {
			return nil, ErrWorldNotFound
		}
		logrus.WithError(err).WithField("world_id", worldID).Error("Failed to get world")
		return nil, ErrInternalServer
	}
	return world, nil
}

// GetLevel 返回单个关卡。
func (s *WorldService) GetLevel(ctx context.Context, levelID uint) (*domain.Level, error) {
	level, err := s.levelRepo.FindByID(ctx, levelID)
	if err != nil {
		if errors.Is(err, repository.ErrLevelNotFound) {
			return nil, ErrLevelNotFound
		}
		logrus.WithError(err).WithField("level_id", levelID).Error("Failed to get level")
		return nil, ErrInternalServer
	}
	return level, nil
}

// ListLevels 返回世界的关卡序列，按 OrderIdx 升序。
// 先确认世界存在，未知世界返回 ErrWorldNotFound。
func (s *WorldService) ListLevels(ctx context.Context, worldID uint) ([]domain.Level, error) {
	if _, err := s.worldRepo.FindByID(ctx, worldID); err != nil {
		if errors.Is(err, repository.ErrWorldNotFound) {
			return nil, ErrWorldNotFound
		}
		logrus.WithError(err).WithField("world_id", worldID).Error("Failed to check world existence")
		return nil, ErrInternalServer
	}
	levels, err := s.levelRepo.FindByWorld(ctx, worldID)
	if err != nil {
		logrus.WithError(err).WithField("world_id", worldID).Error("Failed to list levels")
		return nil, ErrInternalServer
	}
	return levels, nil
}
