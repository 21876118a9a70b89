package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pixel-platformer/internal/domain"
)

// LeaderboardRepository 是 repository.LeaderboardRepository 的 testify mock。
type LeaderboardRepository struct {
	mock.Mock
}

func (m *LeaderboardRepository) TopByWorld(ctx context.Context, worldID uint, limit int) ([]domain.LeaderboardEntry, error) {
	ret := m.Called(ctx, worldID, limit)
	var entries []domain.LeaderboardEntry
	if ret.Get(0) != nil {
		entries = ret.Get(0).([]domain.LeaderboardEntry)
	}
	return entries, ret.Error(1)
}

func (m *LeaderboardRepository) PlayerTotal(ctx context.Context, worldID, playerID uint) (*domain.LeaderboardEntry, error) {
	ret := m.Called(ctx, worldID, playerID)
	var entry *domain.LeaderboardEntry
	if ret.Get(0) != nil {
		entry = ret.Get(0).(*domain.LeaderboardEntry)
	}
	return entry, ret.Error(1)
}

func (m *LeaderboardRepository) RankOf(ctx context.Context, worldID uint, playerID uint, totalXp int) (int, error) {
	ret := m.Called(ctx, worldID, playerID, totalXp)
	return ret.Int(0), ret.Error(1)
}
