package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// PresenceRepository 是 repository.PresenceRepository 的 testify mock。
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) IncrOnline(ctx context.Context, worldID uint) (int64, error) {
	ret := m.Called(ctx, worldID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *PresenceRepository) DecrOnline(ctx context.Context, worldID uint) (int64, error) {
	ret := m.Called(ctx, worldID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *PresenceRepository) GetOnline(ctx context.Context, worldID uint) (int64, error) {
	ret := m.Called(ctx, worldID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *PresenceRepository) AddPendingDelta(ctx context.Context, worldID, playerID uint, xp int) error {
	ret := m.Called(ctx, worldID, playerID, xp)
	return ret.Error(0)
}

func (m *PresenceRepository) GetPendingDeltas(ctx context.Context, worldID uint) (map[uint]int, error) {
	ret := m.Called(ctx, worldID)
	var deltas map[uint]int
	if ret.Get(0) != nil {
		deltas = ret.Get(0).(map[uint]int)
	}
	return deltas, ret.Error(1)
}

func (m *PresenceRepository) ClearPendingDelta(ctx context.Context, worldID, playerID uint) error {
	ret := m.Called(ctx, worldID, playerID)
	return ret.Error(0)
}

func (m *PresenceRepository) ClearAllPendingDeltas(ctx context.Context, worldID uint) error {
	ret := m.Called(ctx, worldID)
	return ret.Error(0)
}

func (m *PresenceRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	ret := m.Called(ctx, key, limit, duration)
	return ret.Bool(0), ret.Error(1)
}
