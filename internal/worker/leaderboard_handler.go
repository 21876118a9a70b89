package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/service"
	"pixel-platformer/internal/tasks"
)

// BoardPusher 把重算好的榜单推给在线房间。由 hub.Hub 实现；
// 独立 worker 进程传 nil，重算仍然执行 (清增量)，只是没有实时推送。
type BoardPusher interface {
	QueueLeaderboard(worldID uint, entries []domain.LeaderboardEntry) bool
}

// LeaderboardHandler 处理排行榜刷新和对账任务。
type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
	worldRepo          repository.WorldRepository
	pusher             BoardPusher
}

// NewLeaderboardHandler 创建 Handler 实例。
func NewLeaderboardHandler(leaderboardService *service.LeaderboardService, worldRepo repository.WorldRepository, pusher BoardPusher) *LeaderboardHandler {
	if leaderboardService == nil {
		panic("LeaderboardService cannot be nil for LeaderboardHandler")
	}
	if worldRepo == nil {
		panic("WorldRepository cannot be nil for LeaderboardHandler")
	}
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		worldRepo:          worldRepo,
		pusher:             pusher,
	}
}

// ProcessRefresh 消费 leaderboard:refresh 任务：重算通关事件所在世界的
// 榜单、清除当事玩家的乐观增量、把结果推给在线房间。
func (h *LeaderboardHandler) ProcessRefresh(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{"task_id": taskID, "task_type": t.Type()})

	var payload tasks.LeaderboardRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	event := payload.Event
	logCtx = logCtx.WithFields(logrus.Fields{"world_id": event.WorldID, "player_id": event.PlayerID})

	entries, err := h.leaderboardService.RefreshWorld(ctx, event.WorldID, event.PlayerID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to refresh leaderboard")
		return fmt.Errorf("failed to refresh leaderboard for world %d: %w", event.WorldID, err)
	}

	if h.pusher != nil {
		h.pusher.QueueLeaderboard(event.WorldID, entries)
	}
	logCtx.WithField("entries", len(entries)).Info("Leaderboard refresh task processed successfully")
	return nil
}

// ProcessReconcile 消费周期性的 leaderboard:reconcile 任务：
// 逐个世界清掉残留的乐观增量。持久化聚合早已覆盖这些增量，
// 清除只是防止失败路径留下的覆盖层无限生效。
func (h *LeaderboardHandler) ProcessReconcile(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	worlds, err := h.worldRepo.FindAll(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list worlds for reconcile")
		return fmt.Errorf("failed to list worlds: %w", err)
	}

	for _, world := range worlds {
		if err := h.leaderboardService.ReconcileWorld(ctx, world.ID); err != nil {
			// 单个世界失败不中断其余世界，下个周期还会再来
			logCtx.WithError(err).WithField("world_id", world.ID).Warn("Failed to reconcile world, continuing")
		}
	}
	logCtx.WithField("worlds", len(worlds)).Info("Leaderboard reconcile task processed")
	return nil
}
