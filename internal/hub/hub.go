package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
	"pixel-platformer/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 2048
)

// sideEffectTimeout 限制主循环外的 Redis/DB 副作用调用。
const sideEffectTimeout = 5 * time.Second

// Message 的 Kind 取值
const (
	msgRegister    = "register"
	msgUnregister  = "unregister"
	msgFrame       = "frame"
	msgCompletion  = "completion"
	msgLeaderboard = "leaderboard"
)

// Message 是 Hub 内部通道上传递的消息。
type Message struct {
	Kind   string
	Client *Client
	Raw    []byte // 仅 frame 使用

	// 仅 completion 使用
	Completion *completionOutcome

	// 仅 leaderboard 使用 (worker 的整榜推送)
	WorldID uint
	Entries []domain.LeaderboardEntry
}

// completionOutcome 是通关判定从工作 goroutine 回到主循环的载荷。
type completionOutcome struct {
	levelID uint
	result  *domain.CompletionResult
	err     error
}

// Room 是一个世界的在线成员集合。所有读写都发生在 Hub 主循环里。
type Room struct {
	worldID uint
	members map[*Client]bool
}

// Hub 维护所有世界房间并串行处理全部会话事件。
//
// 房间状态只属于 Run 所在的单个 goroutine：注册、加入、广播、注销
// 全部经由 messageChan 进入主循环，消息按到达顺序处理，同一房间的
// 广播因此天然有序。耗时的副作用 (通关事务、排行榜查询、在线计数)
// 放到工作 goroutine 里做，结果再以内部消息回到主循环。
type Hub struct {
	messageChan chan Message

	// 以下状态由 Run goroutine 独占
	clients map[*Client]bool
	rooms   map[uint]*Room

	progressionService *service.ProgressionService
	leaderboardService *service.LeaderboardService
	presenceRepo       repository.PresenceRepository
}

// NewHub 创建并返回一个新的 Hub 实例。
// presenceRepo 可以为 nil，此时不维护在线计数。
func NewHub(
	progressionService *service.ProgressionService,
	leaderboardService *service.LeaderboardService,
	presenceRepo repository.PresenceRepository,
) *Hub {
	if progressionService == nil {
		panic("ProgressionService cannot be nil for Hub")
	}
	if leaderboardService == nil {
		panic("LeaderboardService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:        make(chan Message, 512),
		clients:            make(map[*Client]bool),
		rooms:              make(map[uint]*Room),
		progressionService: progressionService,
		leaderboardService: leaderboardService,
		presenceRepo:       presenceRepo,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 应该在一个单独的 goroutine 中运行，messageChan 关闭后退出。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Kind {
		case msgRegister:
			h.registerClient(msg.Client)
		case msgUnregister:
			h.unregisterClient(msg.Client)
		case msgFrame:
			h.handleFrame(msg.Client, msg.Raw)
		case msgCompletion:
			h.handleCompletionOutcome(msg.Client, msg.Completion)
		case msgLeaderboard:
			h.handleLeaderboardPush(msg.WorldID, msg.Entries)
		default:
			log.Warnf("Received unknown message kind: %s", msg.Kind)
		}
	}
	log.Info("Hub is shutting down...")
}

// Register 把新连接交给 Hub (阻塞直到入队)。
func (h *Hub) Register(client *Client) {
	h.messageChan <- Message{Kind: msgRegister, Client: client}
}

// QueueLeaderboard 非阻塞地投递一份整榜推送 (worker 使用)。
// 返回 false 表示队列已满，推送被丢弃。
func (h *Hub) QueueLeaderboard(worldID uint, entries []domain.LeaderboardEntry) bool {
	select {
	case h.messageChan <- Message{Kind: msgLeaderboard, WorldID: worldID, Entries: entries}:
		return true
	default:
		logrus.WithField("world_id", worldID).Warn("Hub message channel full, dropping leaderboard push")
		return false
	}
}

// --- 主循环内的处理函数 ---

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.clients[client] = true
	logrus.WithFields(logrus.Fields{
		"player_id":  client.playerID,
		"session_id": client.sessionID,
	}).Info("Client registered to Hub")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	if _, ok := h.clients[client]; !ok {
		return // 重复注销
	}
	delete(h.clients, client)

	h.leaveWorld(client, true)

	close(client.send)
	logrus.WithFields(logrus.Fields{
		"player_id":  client.playerID,
		"session_id": client.sessionID,
	}).Info("Client unregistered from Hub")
}

// leaveWorld 把客户端移出当前房间并通知余下成员。
// notifyPeers=false 用于换房间时的静默离开前半段 (离开仍然广播)。
func (h *Hub) leaveWorld(client *Client, notifyPeers bool) {
	if client.worldID == 0 {
		return
	}
	worldID := client.worldID
	room, ok := h.rooms[worldID]
	if ok {
		delete(room.members, client)
		if notifyPeers {
			h.broadcastRoom(room, EventPlayerLeft, PresencePayload{
				PlayerID: client.playerID,
				Username: client.username,
			}, nil)
		}
		if len(room.members) == 0 {
			delete(h.rooms, worldID)
			logrus.WithField("world_id", worldID).Info("Room empty, removed from Hub")
		}
	}
	client.worldID = 0

	if h.presenceRepo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if _, err := h.presenceRepo.DecrOnline(ctx, worldID); err != nil {
				logrus.WithError(err).WithField("world_id", worldID).Warn("Failed to decrement online count")
			}
		}()
	}
}

// handleFrame 解析并分发一条入站帧。
// 协议错误只回给发送者 action:invalid，不影响会话状态。
func (h *Hub) handleFrame(client *Client, raw []byte) {
	if client == nil {
		return
	}
	event, err := ParseClientEvent(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"player_id":  client.playerID,
			"session_id": client.sessionID,
		}).WithError(err).Debug("Rejected client frame")
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "unrecognized or malformed event"})
		return
	}

	switch {
	case event.Join != nil:
		h.handleJoin(client, event.Join)
	case event.Position != nil:
		h.handlePosition(client, event.Position)
	case event.Completed != nil:
		h.handleCompleted(client, event.Completed)
	case event.Chat != nil:
		h.handleChat(client, event.Chat)
	case event.Challenge != nil:
		h.handleChallenge(client, event.Challenge)
	case event.Match != nil:
		h.handleMatchResult(client, event.Match)
	}
}

// handleJoin 处理 join-world：一个会话同一时刻至多属于一个世界，
// 再次加入会先离开当前世界。
func (h *Hub) handleJoin(client *Client, p *JoinWorldPayload) {
	if client.worldID == p.WorldID && client.worldID != 0 {
		// 重复加入同一世界当作重新同步：回一份当前快照，不动房间状态
		if room, ok := h.rooms[p.WorldID]; ok {
			h.sendEvent(client, EventWorldState, h.roomSnapshot(room))
		}
		return
	}
	h.leaveWorld(client, true)

	room, ok := h.rooms[p.WorldID]
	if !ok {
		room = &Room{worldID: p.WorldID, members: make(map[*Client]bool)}
		h.rooms[p.WorldID] = room
		logrus.WithField("world_id", p.WorldID).Info("Room created for new world")
	}

	client.worldID = p.WorldID
	client.username = p.Username
	client.position = domain.DefaultSpawnPosition()
	client.levelID = 0

	// 先广播给已有成员，再把包含自己在内的完整快照回给加入者
	h.broadcastRoom(room, EventPlayerJoined, PresencePayload{
		PlayerID: client.playerID,
		Username: client.username,
	}, client)

	room.members[client] = true

	h.sendEvent(client, EventWorldState, h.roomSnapshot(room))

	logrus.WithFields(logrus.Fields{
		"player_id": client.playerID,
		"world_id":  p.WorldID,
		"members":   len(room.members),
	}).Info("Player joined world")

	// 排行榜和在线计数是慢路径，异步处理
	go h.sendInitialLeaderboard(client, p.WorldID)
	if h.presenceRepo != nil {
		go func(worldID uint) {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if _, err := h.presenceRepo.IncrOnline(ctx, worldID); err != nil {
				logrus.WithError(err).WithField("world_id", worldID).Warn("Failed to increment online count")
			}
		}(p.WorldID)
	}
}

// roomSnapshot 组装房间当前成员的完整快照。
func (h *Hub) roomSnapshot(room *Room) WorldStatePayload {
	snapshot := WorldStatePayload{Players: make([]PlayerSnapshot, 0, len(room.members))}
	for member := range room.members {
		snapshot.Players = append(snapshot.Players, PlayerSnapshot{
			PlayerID: member.playerID,
			Username: member.username,
			Position: member.position,
			LevelID:  member.levelID,
		})
	}
	return snapshot
}

// sendInitialLeaderboard 异步获取世界排行榜并发给新加入的客户端。
func (h *Hub) sendInitialLeaderboard(client *Client, worldID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	entries, err := h.leaderboardService.GetLeaderboard(ctx, worldID, service.DefaultLeaderboardLimit)
	if err != nil {
		logrus.WithError(err).WithField("world_id", worldID).Warn("Failed to load leaderboard for joining client")
		return
	}
	frame, err := EncodeEvent(EventLeaderboard, LeaderboardPayload{WorldID: worldID, Players: entries})
	if err != nil {
		logrus.WithError(err).Error("Failed to encode leaderboard event")
		return
	}
	client.trySend(frame)
}

func (h *Hub) handlePosition(client *Client, p *PositionUpdatePayload) {
	if client.worldID == 0 {
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "join a world before sending position updates"})
		return
	}
	client.position = p.Position
	if p.LevelID != 0 {
		client.levelID = p.LevelID
	}

	room, ok := h.rooms[client.worldID]
	if !ok {
		return
	}
	h.broadcastRoom(room, EventPlayerMoved, PlayerMovedPayload{
		PlayerID: client.playerID,
		Username: client.username,
		Position: client.position,
		LevelID:  client.levelID,
	}, client)
}

// handleCompleted 把通关判定交给工作 goroutine，判定结果以内部消息
// 回到主循环再做会话态更新和广播。主循环绝不等数据库。
func (h *Hub) handleCompleted(client *Client, p *LevelCompletedPayload) {
	if client.worldID == 0 {
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "join a world before completing levels"})
		return
	}
	playerID := client.playerID
	levelID := p.LevelID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		result, err := h.progressionService.CompleteLevel(ctx, playerID, levelID)
		outcome := &completionOutcome{levelID: levelID, result: result, err: err}
		select {
		case h.messageChan <- Message{Kind: msgCompletion, Client: client, Completion: outcome}:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{"player_id": playerID, "level_id": levelID}).
				Warn("Timeout queueing completion outcome, dropping broadcast")
		}
	}()
}

// handleCompletionOutcome 在主循环里消费通关判定结果。
// 判定被拒绝时只通知发送者；成功时向整个房间广播成就和排行榜增量。
func (h *Hub) handleCompletionOutcome(client *Client, outcome *completionOutcome) {
	if client == nil || outcome == nil {
		return
	}
	if _, ok := h.clients[client]; !ok {
		return // 连接已断开，持久化结果仍然有效，只是没人收广播
	}

	if outcome.err != nil {
		// 回给客户端的是判定错误本身的文案，仓储层包装的前缀不外泄
		msg := "level completion rejected"
		for _, sentinel := range []error{service.ErrLevelNotFound, service.ErrLevelAlreadyCompleted, service.ErrSequenceViolation} {
			if errors.Is(outcome.err, sentinel) {
				msg = sentinel.Error()
				break
			}
		}
		h.sendEvent(client, EventError, ErrorPayload{Message: msg})
		return
	}

	client.xp += outcome.result.RewardXp

	room, ok := h.rooms[client.worldID]
	if !ok || client.worldID == 0 {
		return
	}

	h.broadcastRoom(room, EventAchievement, AchievementPayload{
		PlayerID:  client.playerID,
		Username:  client.username,
		LevelID:   outcome.levelID,
		Xp:        outcome.result.RewardXp,
		Timestamp: time.Now().UTC(),
	}, nil)

	// 当事玩家的乐观排行榜条目，整榜刷新由 worker 随后推送
	go h.pushPlayerEntry(client.worldID, client.playerID)
}

// pushPlayerEntry 查询单个玩家的 best-effort 条目并以
// leaderboard-update 广播给其所在房间。
func (h *Hub) pushPlayerEntry(worldID, playerID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	entry, err := h.leaderboardService.PlayerEntry(ctx, worldID, playerID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"world_id": worldID, "player_id": playerID}).
			Warn("Failed to compute optimistic leaderboard entry")
		return
	}
	h.QueueLeaderboard(worldID, []domain.LeaderboardEntry{*entry})
}

func (h *Hub) handleChat(client *Client, p *ChatMessagePayload) {
	if client.worldID == 0 {
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "join a world before chatting"})
		return
	}
	room, ok := h.rooms[client.worldID]
	if !ok {
		return
	}
	h.broadcastRoom(room, EventChatReceived, ChatReceivedPayload{
		PlayerID:  client.playerID,
		Username:  client.username,
		Message:   p.Message,
		Timestamp: time.Now().UTC(),
	}, nil)
}

// handleChallenge 把对决邀请直接投递给被挑战者的全部在线会话。
// 被挑战者可以在任何世界；不在线时邀请静默丢弃。
func (h *Hub) handleChallenge(client *Client, p *ChallengePlayerPayload) {
	if client.worldID == 0 {
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "join a world before challenging players"})
		return
	}
	payload := ChallengeReceivedPayload{
		Challenger: PresencePayload{
			PlayerID: client.playerID,
			Username: client.username,
		},
		LevelID:     p.LevelID,
		ChallengeID: "challenge-" + uuid.NewString(),
	}
	delivered := 0
	for target := range h.clients {
		if target.playerID != p.TargetPlayerID {
			continue
		}
		h.sendEvent(target, EventChallengeReceived, payload)
		delivered++
	}
	logrus.WithFields(logrus.Fields{
		"challenger": client.playerID,
		"target":     p.TargetPlayerID,
		"level_id":   p.LevelID,
		"sessions":   delivered,
	}).Info("Challenge dispatched")
}

// handleMatchResult 把客户端上报的对决结果广播给指定世界的房间。
// 没有对应房间时丢弃；结果不影响通关进度，只是房间内的事实通报。
func (h *Hub) handleMatchResult(client *Client, p *MatchResultPayload) {
	if client.worldID == 0 {
		h.sendEvent(client, EventActionInvalid, ErrorPayload{Message: "join a world before reporting match results"})
		return
	}
	room, ok := h.rooms[p.WorldID]
	if !ok {
		return
	}
	h.broadcastRoom(room, EventMatchCompleted, MatchCompletedPayload{
		Winner:    p.WinnerID,
		Loser:     p.LoserID,
		LevelID:   p.LevelID,
		Timestamp: time.Now().UTC(),
	}, nil)
}

// handleLeaderboardPush 把 worker 重算出的榜单广播给对应房间。
// 没有对应房间 (世界里没人在线) 时直接丢弃。
func (h *Hub) handleLeaderboardPush(worldID uint, entries []domain.LeaderboardEntry) {
	room, ok := h.rooms[worldID]
	if !ok {
		return
	}
	h.broadcastRoom(room, EventLeaderboardUpdate, LeaderboardPayload{
		WorldID: worldID,
		Players: entries,
	}, nil)
}

// --- 发送原语 (仅主循环调用) ---

// sendEvent 编码并发送一个事件给单个客户端。
func (h *Hub) sendEvent(client *Client, eventType string, payload interface{}) {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to encode event")
		return
	}
	client.trySend(frame)
}

// broadcastRoom 把事件发给房间的所有成员，exclude 非 nil 时跳过它。
// 对每个客户端非阻塞发送，队列满的慢客户端被跳过。
func (h *Hub) broadcastRoom(room *Room, eventType string, payload interface{}, exclude *Client) {
	if room == nil || len(room.members) == 0 {
		return
	}
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to encode broadcast event")
		return
	}
	for member := range room.members {
		if member == exclude {
			continue
		}
		member.trySend(frame)
	}
}
