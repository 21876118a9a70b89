package service_test // 测试包

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/repository/mocks"
	"pixel-platformer/internal/service"
)

// mockNotifier 记录被发射的通关事件。
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyCompletion(ctx context.Context, event service.CompletionEvent) error {
	ret := m.Called(ctx, event)
	return ret.Error(0)
}

// --- 测试 CompleteLevel 方法 ---

func TestProgressionService_CompleteLevel_FirstLevelSucceeds(t *testing.T) {
	// Arrange: 首关 (OrderIdx=0) 无前置要求，通关应该总是成功
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 1, WorldID: 1, OrderIdx: 0, RewardXp: 50}
	nextLevel := &domain.Level{ID: 2, WorldID: 1, OrderIdx: 1, RewardXp: 75}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(nextLevel, nil).Once()
	mockProgRepo.On("InsertUnlock", ctx, playerID, nextLevel.ID).Return(nil).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err, "首关通关不应失败")
	require.NotNil(t, result)
	assert.Equal(t, 50, result.RewardXp, "应返回关卡的 rewardXp")
	assert.Equal(t, nextLevel.ID, result.UnlockedNextLevelID, "应解锁下一关")
	assert.True(t, result.UnlockedNext())
	mockProgRepo.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_LastLevelUnlocksNothing(t *testing.T) {
	// Arrange: 最后一关没有下一关，解锁步骤应被跳过而不报错
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 3, WorldID: 1, OrderIdx: 2, RewardXp: 100}
	prevLevel := &domain.Level{ID: 2, WorldID: 1, OrderIdx: 1, RewardXp: 75}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(prevLevel, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, prevLevel.ID).Return(true, nil).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 3).Return(nil, repository.ErrLevelNotFound).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, result.RewardXp)
	assert.Zero(t, result.UnlockedNextLevelID, "最后一关不应解锁任何东西")
	assert.False(t, result.UnlockedNext())
	mockProgRepo.AssertExpectations(t)
	// InsertUnlock 不应被调用
	mockProgRepo.AssertNotCalled(t, "InsertUnlock", mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_CompleteLevel_AlreadyCompleted(t *testing.T) {
	// Arrange: 重复提交同一 (玩家, 关卡) 对，第二次必须拿到冲突错误
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 1, WorldID: 1, OrderIdx: 0, RewardXp: 50}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(true, nil).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	assert.ErrorIs(t, err, service.ErrLevelAlreadyCompleted, "重复通关应返回冲突")
	assert.Nil(t, result)
	mockProgRepo.AssertExpectations(t)
	// 判定失败后不允许有任何写入
	mockProgRepo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_CompleteLevel_SequenceViolation(t *testing.T) {
	// Arrange: 前一关未通关时，OrderIdx>0 的关卡必须被拒绝
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 3, WorldID: 1, OrderIdx: 2, RewardXp: 100}
	prevLevel := &domain.Level{ID: 2, WorldID: 1, OrderIdx: 1, RewardXp: 75}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(prevLevel, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, prevLevel.ID).Return(false, nil).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	assert.ErrorIs(t, err, service.ErrSequenceViolation, "越级通关应被拒绝")
	assert.Nil(t, result)
	mockProgRepo.AssertExpectations(t)
	mockProgRepo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_CompleteLevel_MissingPreviousLevelPasses(t *testing.T) {
	// Arrange: 关卡图有洞 (前一个顺序索引没有关卡) 时不因内容问题拒绝玩家
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 5, WorldID: 2, OrderIdx: 3, RewardXp: 80}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 2).Return(nil, repository.ErrLevelNotFound).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 4).Return(nil, repository.ErrLevelNotFound).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 80, result.RewardXp)
	mockProgRepo.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_LevelNotFound(t *testing.T) {
	// Arrange
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	mockProgRepo.On("FindLevelForUpdate", ctx, uint(999)).Return(nil, repository.ErrLevelNotFound).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, uint(7), uint(999))

	// Assert
	assert.ErrorIs(t, err, service.ErrLevelNotFound)
	assert.Nil(t, result)
	mockProgRepo.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_TransientErrorRetried(t *testing.T) {
	// Arrange: 第一次事务死锁，第二次成功，调用方不应感知到重试
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 1, WorldID: 1, OrderIdx: 0, RewardXp: 50}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(nil, repository.ErrTransient).Once()
	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(nil, repository.ErrLevelNotFound).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err, "瞬态错误应被重试而不是上抛")
	assert.Equal(t, 50, result.RewardXp)
	mockProgRepo.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_TransientErrorExhaustsRetries(t *testing.T) {
	// Arrange: 连续死锁耗尽重试次数后报内部错误
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	mockProgRepo.On("FindLevelForUpdate", ctx, uint(1)).Return(nil, repository.ErrTransient).Times(3)

	// Act
	result, err := svc.CompleteLevel(ctx, uint(7), uint(1))

	// Assert
	assert.ErrorIs(t, err, service.ErrInternalServer)
	assert.Nil(t, result)
	mockProgRepo.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_EmitsCompletionEvent(t *testing.T) {
	// Arrange: 成功通关后应发射事件 (乐观增量 + 刷新任务入队)
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	mockPresence := new(mocks.PresenceRepository)
	notifier := new(mockNotifier)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, mockPresence, notifier)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 1, WorldID: 3, OrderIdx: 0, RewardXp: 50}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(nil, repository.ErrLevelNotFound).Once()

	expectedEvent := service.CompletionEvent{PlayerID: playerID, WorldID: 3, LevelID: 1, RewardXp: 50}
	mockPresence.On("AddPendingDelta", ctx, uint(3), playerID, 50).Return(nil).Once()
	notifier.On("NotifyCompletion", ctx, expectedEvent).Return(nil).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 50, result.RewardXp)
	mockProgRepo.AssertExpectations(t)
	mockPresence.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestProgressionService_CompleteLevel_NotifierFailureDoesNotFailCompletion(t *testing.T) {
	// Arrange: 事件发射是 best-effort，入队失败不能让已提交的通关报失败
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	notifier := new(mockNotifier)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, notifier)

	ctx := context.Background()
	playerID := uint(7)
	level := &domain.Level{ID: 1, WorldID: 1, OrderIdx: 0, RewardXp: 50}

	mockProgRepo.On("FindLevelForUpdate", ctx, level.ID).Return(level, nil).Once()
	mockProgRepo.On("IsCompleted", ctx, playerID, level.ID).Return(false, nil).Once()
	mockProgRepo.On("MarkCompleted", ctx, playerID, level.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockProgRepo.On("FindLevelByOrder", ctx, level.WorldID, 1).Return(nil, repository.ErrLevelNotFound).Once()
	notifier.On("NotifyCompletion", ctx, mock.AnythingOfType("service.CompletionEvent")).
		Return(errors.New("broker down")).Once()

	// Act
	result, err := svc.CompleteLevel(ctx, playerID, level.ID)

	// Assert
	require.NoError(t, err, "通知失败不应影响通关结果")
	assert.Equal(t, 50, result.RewardXp)
	notifier.AssertExpectations(t)
}

// --- 测试 UnlockWorld 方法 ---

func TestProgressionService_UnlockWorld_WorldNotFound(t *testing.T) {
	// Arrange
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	mockWorldRepo.On("FindByID", ctx, uint(42)).Return(nil, repository.ErrWorldNotFound).Once()

	// Act
	err := svc.UnlockWorld(ctx, uint(7), uint(42))

	// Assert
	assert.ErrorIs(t, err, service.ErrWorldNotFound)
	mockWorldRepo.AssertExpectations(t)
	mockProgRepo.AssertNotCalled(t, "InsertWorldUnlock", mock.Anything, mock.Anything, mock.Anything)
}

func TestProgressionService_UnlockWorld_Success(t *testing.T) {
	// Arrange
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	svc := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)

	ctx := context.Background()
	world := &domain.World{ID: 2, Name: "Crystal Caves", Slug: "crystal-caves"}
	mockWorldRepo.On("FindByID", ctx, world.ID).Return(world, nil).Once()
	mockProgRepo.On("InsertWorldUnlock", ctx, uint(7), world.ID).Return(nil).Once()

	// Act
	err := svc.UnlockWorld(ctx, uint(7), world.ID)

	// Assert
	assert.NoError(t, err)
	mockWorldRepo.AssertExpectations(t)
	mockProgRepo.AssertExpectations(t)
}
