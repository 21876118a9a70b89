package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/middleware"
	"pixel-platformer/internal/service"
)

// ProgressionHandler 封装通关/解锁相关的 HTTP 处理逻辑。
// 玩家身份一律来自认证中间件，请求体里不接受 playerId。
type ProgressionHandler struct {
	progressionService *service.ProgressionService
}

// NewProgressionHandler 创建 ProgressionHandler 实例。
func NewProgressionHandler(progressionService *service.ProgressionService) *ProgressionHandler {
	if progressionService == nil {
		panic("ProgressionService cannot be nil for ProgressionHandler")
	}
	return &ProgressionHandler{progressionService: progressionService}
}

// CompleteLevelResponse 定义通关成功的响应结构体。
type CompleteLevelResponse struct {
	Completed         bool              `json:"completed"`
	UnlockedNextLevel bool              `json:"unlockedNextLevel"`
	Rewards           CompletionRewards `json:"rewards"`
}

// CompletionRewards 是通关奖励明细。
type CompletionRewards struct {
	Xp int `json:"xp"`
}

// CompleteLevel 处理 POST /players/me/levels/:levelId/complete
func (h *ProgressionHandler) CompleteLevel(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		logrus.Warn("Handler.CompleteLevel: Player ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "Player not authenticated")
		return
	}
	levelID, ok := parseUintParam(c, "levelId")
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"player_id": playerID, "level_id": levelID})

	result, err := h.progressionService.CompleteLevel(c.Request.Context(), playerID, levelID)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CompleteLevel: Completion rejected or failed")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("reward_xp", result.RewardXp).Info("Handler.CompleteLevel: Level completed")
	SuccessResponse(c, http.StatusOK, CompleteLevelResponse{
		Completed:         true,
		UnlockedNextLevel: result.UnlockedNext(),
		Rewards:           CompletionRewards{Xp: result.RewardXp},
	})
}

// PlayerLevels 处理 GET /players/me/levels?worldId=
// 返回玩家视角的关卡序列：完成标记 + 解锁标记。
func (h *ProgressionHandler) PlayerLevels(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Player not authenticated")
		return
	}
	worldID64, err := strconv.ParseUint(c.Query("worldId"), 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid world ID")
		return
	}
	worldID := uint(worldID64)

	levels, err := h.progressionService.GetUnlockedLevels(c.Request.Context(), playerID, worldID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"levels": levels})
}

// Progress 处理 GET /players/me/progress
// 返回认证玩家的通关历史。
func (h *ProgressionHandler) Progress(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Player not authenticated")
		return
	}
	records, err := h.progressionService.GetProgress(c.Request.Context(), playerID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"progress": records})
}

// UnlockWorld 处理 POST /worlds/:worldId/unlock
// 幂等：重复解锁同一世界返回同样的成功响应。
func (h *ProgressionHandler) UnlockWorld(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Player not authenticated")
		return
	}
	worldID, ok := parseUintParam(c, "worldId")
	if !ok {
		return
	}

	if err := h.progressionService.UnlockWorld(c.Request.Context(), playerID, worldID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"unlocked": true, "worldId": worldID})
}
