package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
//
// playerID 在连接建立时由认证中间件确定；worldID / username / position /
// levelID / xp 是会话态，只由 Hub 主循环读写，Client 自己的 goroutine
// 不碰它们。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	playerID  uint

	// 以下字段由 Hub 主循环独占
	username string
	worldID  uint // 0 = 尚未加入任何世界
	levelID  uint
	position domain.Position
	xp       int

	send chan []byte
}

// NewClient 创建一个新的 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, playerID uint) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: uuid.NewString(),
		playerID:  playerID,
		send:      make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// SessionID 返回本连接的会话标识。
func (c *Client) SessionID() string { return c.sessionID }

// PlayerID 返回认证确定的玩家 ID。
func (c *Client) PlayerID() uint { return c.playerID }

// ReadPump 把入站帧泵送到 Hub 的 messageChan。
// 在自己的 goroutine 中运行，退出时请求 Hub 注销本客户端。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		select {
		case c.hub.messageChan <- Message{Kind: msgUnregister, Client: c}:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
				Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
			Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		// 只处理文本帧
		if messageType != websocket.TextMessage {
			logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
				Debugf("Received non-text message type: %d", messageType)
			continue
		}

		// 非阻塞入队，Hub 处理不过来就丢弃该帧
		select {
		case c.hub.messageChan <- Message{Kind: msgFrame, Client: c, Raw: raw}:
		default:
			logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
				Warn("Hub message channel full, dropping client frame")
		}
	}
}

// WritePump 把 send 通道里的消息泵送到 WebSocket 连接，并定期发 Ping。
// 在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
			Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
					WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
					WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}

// trySend 非阻塞地往客户端的发送队列放一帧，队列满则丢弃。
// 慢客户端不允许拖住 Hub 主循环。
func (c *Client) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logrus.WithFields(logrus.Fields{"player_id": c.playerID, "session_id": c.sessionID}).
			Warn("Client send channel full, dropping frame")
	}
}
