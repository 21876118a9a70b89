package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"pixel-platformer/internal/service"
)

// 任务类型常量
const (
	// TypeLeaderboardRefresh 在一次通关提交后重算该世界的排行榜
	TypeLeaderboardRefresh = "leaderboard:refresh"
	// TypeLeaderboardReconcile 周期性清理残留的乐观增量
	TypeLeaderboardReconcile = "leaderboard:reconcile"
)

// LeaderboardRefreshPayload 携带触发刷新的通关事件。
type LeaderboardRefreshPayload struct {
	Event service.CompletionEvent
}

// NewLeaderboardRefreshTask 构造排行榜刷新任务。
func NewLeaderboardRefreshTask(event service.CompletionEvent) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(LeaderboardRefreshPayload{Event: event})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal leaderboard refresh payload: %w", err)
	}
	return asynq.NewTask(TypeLeaderboardRefresh, payloadBytes), nil
}

// NewLeaderboardReconcileTask 构造周期性对账任务 (无载荷)。
func NewLeaderboardReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeLeaderboardReconcile, nil)
}

// AsynqNotifier 是 service.CompletionNotifier 的 asynq 实现：
// 把通关事件入队，交给 worker 异步消费。
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier 创建 AsynqNotifier 实例。
func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	if client == nil {
		panic("asynq client cannot be nil for AsynqNotifier")
	}
	return &AsynqNotifier{client: client}
}

// NotifyCompletion 实现 service.CompletionNotifier。
func (n *AsynqNotifier) NotifyCompletion(ctx context.Context, event service.CompletionEvent) error {
	task, err := NewLeaderboardRefreshTask(event)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		return fmt.Errorf("tasks: enqueue leaderboard refresh: %w", err)
	}
	return nil
}
