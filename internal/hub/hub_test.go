package hub

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository/mocks"
	"pixel-platformer/internal/service"
)

// newTestHub 组装一个由 mock 仓库支撑的 Hub。
// 测试直接调用主循环的处理函数，模拟 Run 的串行消费。
func newTestHub(t *testing.T) (*Hub, *mocks.ProgressionRepository, *mocks.LeaderboardRepository) {
	t.Helper()
	mockProgRepo := new(mocks.ProgressionRepository)
	mockWorldRepo := new(mocks.WorldRepository)
	mockLBRepo := new(mocks.LeaderboardRepository)

	// 加入世界的异步榜单拉取随时可能跑，给它一个兜底预期
	mockLBRepo.On("TopByWorld", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LeaderboardEntry{}, nil).Maybe()

	progressionService := service.NewProgressionService(mockProgRepo, mockWorldRepo, nil, nil)
	leaderboardService := service.NewLeaderboardService(mockLBRepo, nil)
	return NewHub(progressionService, leaderboardService, nil), mockProgRepo, mockLBRepo
}

// joinWorld 注册客户端并让它加入世界，返回加入后清空过收件箱的客户端。
func joinWorld(t *testing.T, h *Hub, playerID uint, username string, worldID uint) *Client {
	t.Helper()
	c := NewClient(h, nil, playerID)
	h.registerClient(c)
	h.handleJoin(c, &JoinWorldPayload{PlayerID: playerID, Username: username, WorldID: worldID})
	drainFrames(c)
	return c
}

// drainFrames 非阻塞地取空客户端的发送队列，按事件类型归组返回。
func drainFrames(c *Client) map[string][]json.RawMessage {
	frames := make(map[string][]json.RawMessage)
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				frames[env.Type] = append(frames[env.Type], env.Data)
			}
		default:
			return frames
		}
	}
}

func TestHub_JoinCreatesRoomAndReturnsSnapshot(t *testing.T) {
	h, _, _ := newTestHub(t)

	c1 := NewClient(h, nil, 1)
	h.registerClient(c1)
	h.handleJoin(c1, &JoinWorldPayload{PlayerID: 1, Username: "ruby", WorldID: 5})

	require.Contains(t, h.rooms, uint(5), "加入应创建房间")
	assert.True(t, h.rooms[5].members[c1])
	assert.Equal(t, uint(5), c1.worldID)
	assert.Equal(t, domain.DefaultSpawnPosition(), c1.position)

	frames := drainFrames(c1)
	require.Len(t, frames[EventWorldState], 1, "加入者应收到 world-state 快照")
	var snapshot WorldStatePayload
	require.NoError(t, json.Unmarshal(frames[EventWorldState][0], &snapshot))
	require.Len(t, snapshot.Players, 1, "快照应包含加入者自己")
	assert.Equal(t, uint(1), snapshot.Players[0].PlayerID)
	assert.Equal(t, "ruby", snapshot.Players[0].Username)
}

func TestHub_SecondJoinerNotifiesExistingMembers(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)

	c2 := NewClient(h, nil, 2)
	h.registerClient(c2)
	h.handleJoin(c2, &JoinWorldPayload{PlayerID: 2, Username: "max", WorldID: 5})

	// 已有成员收到 player-joined
	frames1 := drainFrames(c1)
	require.Len(t, frames1[EventPlayerJoined], 1)
	var joined PresencePayload
	require.NoError(t, json.Unmarshal(frames1[EventPlayerJoined][0], &joined))
	assert.Equal(t, uint(2), joined.PlayerID)

	// 新成员的快照包含两个人
	frames2 := drainFrames(c2)
	require.Len(t, frames2[EventWorldState], 1)
	var snapshot WorldStatePayload
	require.NoError(t, json.Unmarshal(frames2[EventWorldState][0], &snapshot))
	assert.Len(t, snapshot.Players, 2)
	// 新成员不应收到关于自己的 player-joined
	assert.Empty(t, frames2[EventPlayerJoined])
}

func TestHub_RejoiningAnotherWorldLeavesFirst(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleJoin(c1, &JoinWorldPayload{PlayerID: 1, Username: "ruby", WorldID: 9})

	assert.Equal(t, uint(9), c1.worldID, "会话同一时刻只属于一个世界")
	assert.False(t, h.rooms[5].members[c1])
	assert.True(t, h.rooms[9].members[c1])

	frames2 := drainFrames(c2)
	require.Len(t, frames2[EventPlayerLeft], 1, "留守成员应收到 player-left")
}

func TestHub_PositionUpdateBroadcastExcludesSender(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleFrame(c1, []byte(`{"type":"position-update","data":{"position":{"x":100,"y":200},"levelId":3}}`))

	assert.Equal(t, 100.0, c1.position.X)
	assert.Equal(t, uint(3), c1.levelID)

	frames2 := drainFrames(c2)
	require.Len(t, frames2[EventPlayerMoved], 1, "其他成员应收到 player-moved")
	var moved PlayerMovedPayload
	require.NoError(t, json.Unmarshal(frames2[EventPlayerMoved][0], &moved))
	assert.Equal(t, uint(1), moved.PlayerID)
	assert.Equal(t, 200.0, moved.Position.Y)

	frames1 := drainFrames(c1)
	assert.Empty(t, frames1[EventPlayerMoved], "发送者不应收到自己的移动广播")
}

func TestHub_MalformedFrameRepliesInvalidToSenderOnly(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleFrame(c1, []byte(`{"type":"teleport-hack","data":{}}`))

	frames1 := drainFrames(c1)
	require.Len(t, frames1[EventActionInvalid], 1, "协议错误只回给发送者")
	frames2 := drainFrames(c2)
	assert.Empty(t, frames2[EventActionInvalid], "其他成员不受影响")

	// 房间状态不被破坏
	assert.True(t, h.rooms[5].members[c1])
	assert.True(t, h.rooms[5].members[c2])
}

func TestHub_ActionsBeforeJoinAreRejected(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := NewClient(h, nil, 1)
	h.registerClient(c)

	h.handleFrame(c, []byte(`{"type":"position-update","data":{"position":{"x":1,"y":1}}}`))
	h.handleFrame(c, []byte(`{"type":"chat-message","data":{"message":"hi","worldId":5}}`))

	frames := drainFrames(c)
	assert.Len(t, frames[EventActionInvalid], 2, "未加入世界前的动作应被拒绝")
}

func TestHub_ChatBroadcastIncludesSender(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleFrame(c1, []byte(`{"type":"chat-message","data":{"message":"nice jump!","worldId":5}}`))

	for _, c := range []*Client{c1, c2} {
		frames := drainFrames(c)
		require.Len(t, frames[EventChatReceived], 1, "聊天广播给包括发送者在内的全房间")
		var chat ChatReceivedPayload
		require.NoError(t, json.Unmarshal(frames[EventChatReceived][0], &chat))
		assert.Equal(t, "nice jump!", chat.Message)
		assert.Equal(t, uint(1), chat.PlayerID)
		assert.False(t, chat.Timestamp.IsZero())
	}
}

func TestHub_CompletionOutcomeBroadcastsAchievement(t *testing.T) {
	h, _, mockLBRepo := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	// 成功路径会异步推送当事玩家的乐观条目
	mockLBRepo.On("PlayerTotal", mock.Anything, uint(5), uint(1)).
		Return(&domain.LeaderboardEntry{PlayerID: 1, Username: "ruby", TotalXp: 50}, nil).Maybe()
	mockLBRepo.On("RankOf", mock.Anything, uint(5), uint(1), 50).Return(1, nil).Maybe()

	h.handleCompletionOutcome(c1, &completionOutcome{
		levelID: 3,
		result:  &domain.CompletionResult{RewardXp: 50, UnlockedNextLevelID: 4},
	})

	assert.Equal(t, 50, c1.xp, "会话经验应累加奖励")

	for _, c := range []*Client{c1, c2} {
		frames := drainFrames(c)
		require.Len(t, frames[EventAchievement], 1, "成就广播给全房间")
		var achievement AchievementPayload
		require.NoError(t, json.Unmarshal(frames[EventAchievement][0], &achievement))
		assert.Equal(t, uint(1), achievement.PlayerID)
		assert.Equal(t, uint(3), achievement.LevelID)
		assert.Equal(t, 50, achievement.Xp)
	}
}

func TestHub_CompletionRejectionNotifiesSenderOnly(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleCompletionOutcome(c1, &completionOutcome{
		levelID: 3,
		err:     service.ErrSequenceViolation,
	})

	assert.Zero(t, c1.xp, "被拒绝的通关不加经验")
	frames1 := drainFrames(c1)
	require.Len(t, frames1[EventError], 1)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(frames1[EventError][0], &errPayload))
	assert.Equal(t, service.ErrSequenceViolation.Error(), errPayload.Message)

	frames2 := drainFrames(c2)
	assert.Empty(t, frames2[EventError], "判定失败不广播")
	assert.Empty(t, frames2[EventAchievement])
}

func TestHub_LeaderboardPushReachesRoom(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	joinWorld(t, h, 2, "max", 9)

	entries := []domain.LeaderboardEntry{{PlayerID: 1, Username: "ruby", TotalXp: 200, Rank: 1}}
	h.handleLeaderboardPush(5, entries)
	h.handleLeaderboardPush(77, entries) // 没人在线的世界，直接丢弃

	frames := drainFrames(c1)
	require.Len(t, frames[EventLeaderboardUpdate], 1)
	var payload LeaderboardPayload
	require.NoError(t, json.Unmarshal(frames[EventLeaderboardUpdate][0], &payload))
	assert.Equal(t, uint(5), payload.WorldID)
	require.Len(t, payload.Players, 1)
	assert.Equal(t, 200, payload.Players[0].TotalXp)
}

func TestHub_UnregisterCleansUpRoom(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.unregisterClient(c1)

	assert.NotContains(t, h.clients, c1)
	assert.False(t, h.rooms[5].members[c1])

	frames2 := drainFrames(c2)
	require.Len(t, frames2[EventPlayerLeft], 1, "断开应广播 player-left")

	// send 通道已关闭：取空残留缓冲后读取必然立即返回 !ok
	for {
		if _, ok := <-c1.send; !ok {
			break
		}
	}

	// 最后一个成员离开后房间被删除
	h.unregisterClient(c2)
	assert.NotContains(t, h.rooms, uint(5), "空房间应被删除")

	// 重复注销是 no-op，不 panic
	h.unregisterClient(c2)
}

func TestHub_RejoinSameWorldResendsSnapshot(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)

	h.handleJoin(c1, &JoinWorldPayload{PlayerID: 1, Username: "ruby", WorldID: 5})

	// 重新同步：加入者再次收到完整快照
	frames1 := drainFrames(c1)
	require.Len(t, frames1[EventWorldState], 1, "重复加入同一世界应重发 world-state")
	var snapshot WorldStatePayload
	require.NoError(t, json.Unmarshal(frames1[EventWorldState][0], &snapshot))
	assert.Len(t, snapshot.Players, 2)

	// 房间状态不动，留守成员不收到离开/加入广播
	assert.True(t, h.rooms[5].members[c1])
	frames2 := drainFrames(c2)
	assert.Empty(t, frames2[EventPlayerLeft])
	assert.Empty(t, frames2[EventPlayerJoined])
}

func TestHub_CompletionRejectionMessageHasNoStoragePrefix(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)

	// 仓储层把事务回调的错误包了一层，客户端看到的仍是判定文案本身
	wrapped := fmt.Errorf("gorm: progression transaction: %w", service.ErrLevelAlreadyCompleted)
	h.handleCompletionOutcome(c1, &completionOutcome{levelID: 3, err: wrapped})

	frames := drainFrames(c1)
	require.Len(t, frames[EventError], 1)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(frames[EventError][0], &errPayload))
	assert.Equal(t, service.ErrLevelAlreadyCompleted.Error(), errPayload.Message)
}

func TestHub_ChallengeDeliveredToTargetSessionsOnly(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 9) // 被挑战者可以在别的世界
	c3 := joinWorld(t, h, 3, "leo", 5)

	h.handleFrame(c1, []byte(`{"type":"challenge-player","data":{"targetPlayerId":2,"levelId":7}}`))

	frames2 := drainFrames(c2)
	require.Len(t, frames2[EventChallengeReceived], 1, "邀请只投递给被挑战者")
	var challenge ChallengeReceivedPayload
	require.NoError(t, json.Unmarshal(frames2[EventChallengeReceived][0], &challenge))
	assert.Equal(t, uint(1), challenge.Challenger.PlayerID)
	assert.Equal(t, "ruby", challenge.Challenger.Username)
	assert.Equal(t, uint(7), challenge.LevelID)
	assert.NotEmpty(t, challenge.ChallengeID)

	frames3 := drainFrames(c3)
	assert.Empty(t, frames3[EventChallengeReceived], "同房间旁观者不收到邀请")
	frames1 := drainFrames(c1)
	assert.Empty(t, frames1[EventChallengeReceived])

	// 不在线的目标静默丢弃，不报错
	h.handleFrame(c1, []byte(`{"type":"challenge-player","data":{"targetPlayerId":99,"levelId":7}}`))
	frames1 = drainFrames(c1)
	assert.Empty(t, frames1[EventActionInvalid])
}

func TestHub_MatchResultBroadcastsToNamedRoom(t *testing.T) {
	h, _, _ := newTestHub(t)
	c1 := joinWorld(t, h, 1, "ruby", 5)
	c2 := joinWorld(t, h, 2, "max", 5)
	c3 := joinWorld(t, h, 3, "leo", 9)

	h.handleFrame(c1, []byte(`{"type":"match-result","data":{"winnerId":1,"loserId":2,"levelId":7,"worldId":5}}`))

	for _, c := range []*Client{c1, c2} {
		frames := drainFrames(c)
		require.Len(t, frames[EventMatchCompleted], 1, "对决结果广播给指定世界全房间")
		var completed MatchCompletedPayload
		require.NoError(t, json.Unmarshal(frames[EventMatchCompleted][0], &completed))
		assert.Equal(t, uint(1), completed.Winner)
		assert.Equal(t, uint(2), completed.Loser)
		assert.Equal(t, uint(7), completed.LevelID)
		assert.False(t, completed.Timestamp.IsZero())
	}

	frames3 := drainFrames(c3)
	assert.Empty(t, frames3[EventMatchCompleted], "别的世界不收到")

	// 没人在线的世界直接丢弃
	h.handleFrame(c1, []byte(`{"type":"match-result","data":{"winnerId":1,"loserId":2,"levelId":7,"worldId":42}}`))
	frames1 := drainFrames(c1)
	assert.Empty(t, frames1[EventMatchCompleted])
}

func TestHub_QueueLeaderboardNonBlocking(t *testing.T) {
	h, _, _ := newTestHub(t)

	ok := h.QueueLeaderboard(5, []domain.LeaderboardEntry{{PlayerID: 1, TotalXp: 10}})
	assert.True(t, ok)

	msg := <-h.messageChan
	assert.Equal(t, msgLeaderboard, msg.Kind)
	assert.Equal(t, uint(5), msg.WorldID)
}
