package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/hub"
	"pixel-platformer/internal/middleware"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
// 世界的选择不在 URL 里，连接建立后由 join-world 事件决定，
// 一条连接可以先后加入不同的世界。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 GET /ws 的升级请求。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证玩家 ID (由 Auth 中间件设置)
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		logrus.Warn("WS Handler: Player ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Player not authenticated"})
		return
	}
	logCtx := logrus.WithField("player_id", playerID)

	// 2. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写了 HTTP 错误响应，这里只记日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	// 3. 创建 Client 并注册到 Hub，再启动读写泵
	client := hub.NewClient(h.hub, conn, playerID)
	h.hub.Register(client)
	client.Run()

	logCtx.WithField("session_id", client.SessionID()).Info("WS Handler: Client connected")
}
