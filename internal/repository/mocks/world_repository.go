package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pixel-platformer/internal/domain"
)

// WorldRepository 是 repository.WorldRepository 的 testify mock。
type WorldRepository struct {
	mock.Mock
}

func (m *WorldRepository) FindByID(ctx context.Context, id uint) (*domain.World, error) {
	ret := m.Called(ctx, id)
	var world *domain.World
	if ret.Get(0) != nil {
		world = ret.Get(0).(*domain.World)
	}
	return world, ret.Error(1)
}

func (m *WorldRepository) FindAll(ctx context.Context) ([]domain.World, error) {
	ret := m.Called(ctx)
	var worlds []domain.World
	if ret.Get(0) != nil {
		worlds = ret.Get(0).([]domain.World)
	}
	return worlds, ret.Error(1)
}

// LevelRepository 是 repository.LevelRepository 的 testify mock。
type LevelRepository struct {
	mock.Mock
}

func (m *LevelRepository) FindByID(ctx context.Context, id uint) (*domain.Level, error) {
	ret := m.Called(ctx, id)
	var level *domain.Level
	if ret.Get(0) != nil {
		level = ret.Get(0).(*domain.Level)
	}
	return level, ret.Error(1)
}

func (m *LevelRepository) FindByWorld(ctx context.Context, worldID uint) ([]domain.Level, error) {
	ret := m.Called(ctx, worldID)
	var levels []domain.Level
	if ret.Get(0) != nil {
		levels = ret.Get(0).([]domain.Level)
	}
	return levels, ret.Error(1)
}
