package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/service"
	"pixel-platformer/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑。
type WorkerServer struct {
	server             *asynq.Server
	log                *logrus.Entry
	leaderboardService *service.LeaderboardService
	worldRepo          repository.WorldRepository
	pusher             BoardPusher
}

// NewWorkerServer 创建一个新的 WorkerServer 实例。
// pusher 可以为 nil (独立 worker 进程没有可推送的房间)。
func NewWorkerServer(
	redisOpt asynq.RedisClientOpt,
	leaderboardService *service.LeaderboardService,
	worldRepo repository.WorldRepository,
	pusher BoardPusher,
	logger *logrus.Logger,
) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:             server,
		log:                logEntry,
		leaderboardService: leaderboardService,
		worldRepo:          worldRepo,
		pusher:             pusher,
	}
}

// Start 运行 Worker Server。应该在一个单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()

	handler := NewLeaderboardHandler(ws.leaderboardService, ws.worldRepo, ws.pusher)
	mux.HandleFunc(tasks.TypeLeaderboardRefresh, handler.ProcessRefresh)
	mux.HandleFunc(tasks.TypeLeaderboardReconcile, handler.ProcessReconcile)

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server。
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
