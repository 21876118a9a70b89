package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pixel-platformer/internal/domain"
)

// 客户端 -> 服务端 的事件类型 (闭合集合，边界处一次性解析)
const (
	EventJoinWorld       = "join-world"
	EventPositionUpdate  = "position-update"
	EventLevelCompleted  = "level-completed"
	EventChatMessage     = "chat-message"
	EventChallengePlayer = "challenge-player"
	EventMatchResult     = "match-result"
)

// 服务端 -> 客户端 的事件类型
const (
	EventWorldState        = "world-state"
	EventPlayerJoined      = "player-joined"
	EventPlayerLeft        = "player-left"
	EventPlayerMoved       = "player-moved"
	EventAchievement       = "achievement"
	EventLeaderboard       = "leaderboard"
	EventLeaderboardUpdate = "leaderboard-update"
	EventChatReceived      = "chat-received"
	EventChallengeReceived = "challenge-received"
	EventMatchCompleted    = "match-completed"
	EventError             = "error"
	EventActionInvalid     = "action:invalid"
)

// ErrUnknownEventType 表示入站事件缺少可识别的类型标签。
// 这类事件只回给发送者一个协议错误，既不修改房间状态也不断开连接。
var ErrUnknownEventType = errors.New("hub: unknown event type")

// Envelope 是线上消息的统一信封：类型标签 + 原始载荷。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// --- 入站载荷 ---

// JoinWorldPayload 对应 join-world 事件。
type JoinWorldPayload struct {
	PlayerID uint   `json:"playerId"`
	Username string `json:"username"`
	WorldID  uint   `json:"worldId"`
}

// PositionUpdatePayload 对应 position-update 事件。
type PositionUpdatePayload struct {
	Position domain.Position `json:"position"`
	LevelID  uint            `json:"levelId"`
}

// LevelCompletedPayload 对应 level-completed 事件。
// Xp 只是客户端的展示预期，服务端以 Progression Store 的判定为准。
type LevelCompletedPayload struct {
	LevelID uint `json:"levelId"`
	WorldID uint `json:"worldId"`
	Xp      int  `json:"xp"`
}

// ChatMessagePayload 对应 chat-message 事件。
type ChatMessagePayload struct {
	Message string `json:"message"`
	WorldID uint   `json:"worldId"`
}

// ChallengePlayerPayload 对应 challenge-player 事件 (PvP 对决邀请)。
type ChallengePlayerPayload struct {
	TargetPlayerID uint `json:"targetPlayerId"`
	LevelID        uint `json:"levelId"`
}

// MatchResultPayload 对应 match-result 事件。
// 结果由客户端上报，只做房间内的事实广播，不写进度存档。
type MatchResultPayload struct {
	WinnerID uint `json:"winnerId"`
	LoserID  uint `json:"loserId"`
	LevelID  uint `json:"levelId"`
	WorldID  uint `json:"worldId"`
}

// ClientEvent 是入站事件的闭合标签联合：恰好一个字段非 nil。
// 解析在边界完成一次，之后的分发只面对类型化的载荷。
type ClientEvent struct {
	Join      *JoinWorldPayload
	Position  *PositionUpdatePayload
	Completed *LevelCompletedPayload
	Chat      *ChatMessagePayload
	Challenge *ChallengePlayerPayload
	Match     *MatchResultPayload
}

// ParseClientEvent 将原始入站帧解析为类型化的事件。
// 不认识的标签、缺字段或无法解析的载荷都返回错误，由调用方
// 回发 action:invalid。
func ParseClientEvent(raw []byte) (*ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("hub: malformed event frame: %w", err)
	}

	switch env.Type {
	case EventJoinWorld:
		var p JoinWorldPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed join-world payload: %w", err)
		}
		if p.Username == "" || p.WorldID == 0 {
			return nil, fmt.Errorf("hub: join-world requires username and worldId")
		}
		return &ClientEvent{Join: &p}, nil

	case EventPositionUpdate:
		var p PositionUpdatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed position-update payload: %w", err)
		}
		return &ClientEvent{Position: &p}, nil

	case EventLevelCompleted:
		var p LevelCompletedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed level-completed payload: %w", err)
		}
		if p.LevelID == 0 {
			return nil, fmt.Errorf("hub: level-completed requires levelId")
		}
		return &ClientEvent{Completed: &p}, nil

	case EventChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed chat-message payload: %w", err)
		}
		if p.Message == "" {
			return nil, fmt.Errorf("hub: chat-message requires message")
		}
		return &ClientEvent{Chat: &p}, nil

	case EventChallengePlayer:
		var p ChallengePlayerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed challenge-player payload: %w", err)
		}
		if p.TargetPlayerID == 0 || p.LevelID == 0 {
			return nil, fmt.Errorf("hub: challenge-player requires targetPlayerId and levelId")
		}
		return &ClientEvent{Challenge: &p}, nil

	case EventMatchResult:
		var p MatchResultPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("hub: malformed match-result payload: %w", err)
		}
		if p.WinnerID == 0 || p.LoserID == 0 || p.WorldID == 0 {
			return nil, fmt.Errorf("hub: match-result requires winnerId, loserId and worldId")
		}
		return &ClientEvent{Match: &p}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

// --- 出站载荷 ---

// PlayerSnapshot 是房间成员在 world-state 快照里的形态。
type PlayerSnapshot struct {
	PlayerID uint            `json:"playerId"`
	Username string          `json:"username"`
	Position domain.Position `json:"position"`
	LevelID  uint            `json:"levelId"`
}

// WorldStatePayload 是加入世界后回给加入者的完整成员快照。
type WorldStatePayload struct {
	Players []PlayerSnapshot `json:"players"`
}

// PresencePayload 用于 player-joined / player-left。
type PresencePayload struct {
	PlayerID uint   `json:"playerId"`
	Username string `json:"username"`
}

// PlayerMovedPayload 用于 player-moved。
type PlayerMovedPayload struct {
	PlayerID uint            `json:"playerId"`
	Username string          `json:"username"`
	Position domain.Position `json:"position"`
	LevelID  uint            `json:"levelId"`
}

// AchievementPayload 用于 achievement。
type AchievementPayload struct {
	PlayerID  uint      `json:"playerId"`
	Username  string    `json:"username"`
	LevelID   uint      `json:"levelId"`
	Xp        int       `json:"xp"`
	Timestamp time.Time `json:"timestamp"`
}

// LeaderboardPayload 用于 leaderboard / leaderboard-update。
type LeaderboardPayload struct {
	WorldID uint                      `json:"worldId"`
	Players []domain.LeaderboardEntry `json:"players"`
}

// ChatReceivedPayload 用于 chat-received。
type ChatReceivedPayload struct {
	PlayerID  uint      `json:"playerId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChallengeReceivedPayload 用于 challenge-received，只发给被挑战者。
type ChallengeReceivedPayload struct {
	Challenger  PresencePayload `json:"challenger"`
	LevelID     uint            `json:"levelId"`
	ChallengeID string          `json:"challengeId"`
}

// MatchCompletedPayload 用于 match-completed 的房间广播。
type MatchCompletedPayload struct {
	Winner    uint      `json:"winner"`
	Loser     uint      `json:"loser"`
	LevelID   uint      `json:"levelId"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload 用于 error 和 action:invalid。
type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeEvent 将出站事件编码为信封帧。
func EncodeEvent(eventType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("hub: marshal %s payload: %w", eventType, err)
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("hub: marshal %s envelope: %w", eventType, err)
	}
	return frame, nil
}
