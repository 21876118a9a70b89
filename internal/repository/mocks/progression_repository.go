package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// ProgressionRepository 是 repository.ProgressionRepository 的 testify mock。
//
// WithTx 不走 mock 预期：它把自身作为事务句柄直接执行回调，
// TxErr 非 nil 时改为直接返回该错误 (模拟事务启动失败/回滚)。
// 这样测试可以对回调内的规则序列逐个设置预期。
type ProgressionRepository struct {
	mock.Mock
	TxErr error
}

func (m *ProgressionRepository) WithTx(ctx context.Context, fn func(tx repository.ProgressionRepository) error) error {
	if m.TxErr != nil {
		return m.TxErr
	}
	return fn(m)
}

func (m *ProgressionRepository) FindLevelForUpdate(ctx context.Context, levelID uint) (*domain.Level, error) {
	ret := m.Called(ctx, levelID)
	var level *domain.Level
	if ret.Get(0) != nil {
		level = ret.Get(0).(*domain.Level)
	}
	return level, ret.Error(1)
}

func (m *ProgressionRepository) FindLevelByOrder(ctx context.Context, worldID uint, orderIdx int) (*domain.Level, error) {
	ret := m.Called(ctx, worldID, orderIdx)
	var level *domain.Level
	if ret.Get(0) != nil {
		level = ret.Get(0).(*domain.Level)
	}
	return level, ret.Error(1)
}

func (m *ProgressionRepository) IsCompleted(ctx context.Context, playerID, levelID uint) (bool, error) {
	ret := m.Called(ctx, playerID, levelID)
	return ret.Bool(0), ret.Error(1)
}

func (m *ProgressionRepository) MarkCompleted(ctx context.Context, playerID, levelID uint, at time.Time) error {
	ret := m.Called(ctx, playerID, levelID, at)
	return ret.Error(0)
}

func (m *ProgressionRepository) InsertUnlock(ctx context.Context, playerID, levelID uint) error {
	ret := m.Called(ctx, playerID, levelID)
	return ret.Error(0)
}

func (m *ProgressionRepository) InsertWorldUnlock(ctx context.Context, playerID, worldID uint) error {
	ret := m.Called(ctx, playerID, worldID)
	return ret.Error(0)
}

func (m *ProgressionRepository) ListPlayerLevels(ctx context.Context, playerID, worldID uint) ([]domain.PlayerLevel, error) {
	ret := m.Called(ctx, playerID, worldID)
	var levels []domain.PlayerLevel
	if ret.Get(0) != nil {
		levels = ret.Get(0).([]domain.PlayerLevel)
	}
	return levels, ret.Error(1)
}

func (m *ProgressionRepository) ListCompleted(ctx context.Context, playerID uint) ([]domain.PlayerProgress, error) {
	ret := m.Called(ctx, playerID)
	var records []domain.PlayerProgress
	if ret.Get(0) != nil {
		records = ret.Get(0).([]domain.PlayerProgress)
	}
	return records, ret.Error(1)
}
