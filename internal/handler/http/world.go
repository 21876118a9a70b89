package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/service"
)

// WorldHandler 封装世界/关卡内容的只读查询接口。
type WorldHandler struct {
	worldService *service.WorldService
	presenceRepo repository.PresenceRepository
}

// NewWorldHandler 创建 WorldHandler 实例。
// presenceRepo 可以为 nil，此时在线人数接口恒返回 0。
func NewWorldHandler(worldService *service.WorldService, presenceRepo repository.PresenceRepository) *WorldHandler {
	if worldService == nil {
		panic("WorldService cannot be nil for WorldHandler")
	}
	return &WorldHandler{worldService: worldService, presenceRepo: presenceRepo}
}

// ListWorlds 处理 GET /worlds
func (h *WorldHandler) ListWorlds(c *gin.Context) {
	worlds, err := h.worldService.ListWorlds(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"worlds": worlds})
}

// GetWorld 处理 GET /worlds/:worldId
func (h *WorldHandler) GetWorld(c *gin.Context) {
	worldID, ok := parseUintParam(c, "worldId")
	if !ok {
		return
	}
	world, err := h.worldService.GetWorld(c.Request.Context(), worldID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, world)
}

// GetLevel 处理 GET /levels/:levelId
func (h *WorldHandler) GetLevel(c *gin.Context) {
	levelID, ok := parseUintParam(c, "levelId")
	if !ok {
		return
	}
	level, err := h.worldService.GetLevel(c.Request.Context(), levelID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, level)
}

// ListLevels 处理 GET /worlds/:worldId/levels
func (h *WorldHandler) ListLevels(c *gin.Context) {
	worldID, ok := parseUintParam(c, "worldId")
	if !ok {
		return
	}
	levels, err := h.worldService.ListLevels(c.Request.Context(), worldID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"levels": levels})
}

// OnlineCount 处理 GET /worlds/:worldId/online
// 返回该世界当前的实时在线人数 (来自易失计数器，非持久化)。
func (h *WorldHandler) OnlineCount(c *gin.Context) {
	worldID, ok := parseUintParam(c, "worldId")
	if !ok {
		return
	}
	var count int64
	if h.presenceRepo != nil {
		var err error
		count, err = h.presenceRepo.GetOnline(c.Request.Context(), worldID)
		if err != nil {
			logrus.WithError(err).WithField("world_id", worldID).Error("Failed to read online count")
			ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
			return
		}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"worldId": worldID, "online": count})
}

// parseUintParam 解析路径参数为正整数 ID，失败时直接写 400 响应。
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		logrus.WithField(name, raw).Warn("Invalid path parameter")
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return uint(v), true
}
