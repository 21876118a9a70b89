package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/middleware"
	"pixel-platformer/internal/service"
)

// LeaderboardHandler 封装排行榜查询接口。
type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

// NewLeaderboardHandler 创建 LeaderboardHandler 实例。
func NewLeaderboardHandler(leaderboardService *service.LeaderboardService) *LeaderboardHandler {
	if leaderboardService == nil {
		panic("LeaderboardService cannot be nil for LeaderboardHandler")
	}
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

// GetLeaderboard 处理 GET /leaderboard
// query: worldId (省略或 "all" 表示全局榜)，limit (默认 10)。
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	worldID := domain.WorldAll
	if raw := c.Query("worldId"); raw != "" && raw != "all" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			logrus.WithField("worldId", raw).Warn("Invalid worldId query parameter")
			ErrorResponse(c, http.StatusBadRequest, "Invalid worldId parameter")
			return
		}
		worldID = uint(v)
	}

	limit := service.DefaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 100 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = v
	}

	entries, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), worldID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"worldId": worldID, "players": entries})
}

// MyEntry 处理 GET /leaderboard/me
// 返回认证玩家在指定世界的排行榜条目 (总经验 + 近似名次)。
func (h *LeaderboardHandler) MyEntry(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Player not authenticated")
		return
	}

	worldID := domain.WorldAll
	if raw := c.Query("worldId"); raw != "" && raw != "all" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid worldId parameter")
			return
		}
		worldID = uint(v)
	}

	entry, err := h.leaderboardService.PlayerEntry(c.Request.Context(), worldID, playerID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, entry)
}
