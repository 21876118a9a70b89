package domain

import "time"

// PlayerProgress 记录某个 (玩家, 关卡) 对是否已通关。
// Completed 一旦为 true 就不会被后续的通关尝试重置 (单向转换，append-only 语义)。
type PlayerProgress struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	PlayerID    uint       `gorm:"uniqueIndex:idx_player_level;not null" json:"playerId"` // 玩家 ID
	LevelID     uint       `gorm:"uniqueIndex:idx_player_level;not null" json:"levelId"`  // 关卡 ID
	Completed   bool       `gorm:"not null;default:false" json:"completed"`               // 是否已通关
	CompletedAt *time.Time `json:"completedAt,omitempty"`                                 // 通关时间戳
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"-"`
}

// TableName 保持与原有库表命名一致。
func (PlayerProgress) TableName() string { return "player_progress" }

// PlayerUnlock 是对首关之外的关卡的显式解锁授权。
// (playerID, levelID) 对至多存在一条记录，重复插入是幂等的 no-op。
type PlayerUnlock struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	PlayerID  uint      `gorm:"uniqueIndex:idx_unlock_pair;not null" json:"playerId"`
	LevelID   uint      `gorm:"uniqueIndex:idx_unlock_pair;not null" json:"levelId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"unlockedAt"`
}

func (PlayerUnlock) TableName() string { return "player_unlocks" }

// PlayerWorld 记录玩家已解锁的世界 (幂等授权，同 PlayerUnlock)。
type PlayerWorld struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	PlayerID   uint      `gorm:"uniqueIndex:idx_player_world;not null" json:"playerId"`
	WorldID    uint      `gorm:"uniqueIndex:idx_player_world;not null" json:"worldId"`
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlockedAt"`
}

func (PlayerWorld) TableName() string { return "player_worlds" }

// CompletionResult 是一次成功通关事务的返回值。
type CompletionResult struct {
	RewardXp            int  // 本关的奖励经验值
	UnlockedNextLevelID uint // 被解锁的下一关 ID，0 表示本关已是世界最后一关
}

// UnlockedNext 报告本次通关是否解锁了下一关。
func (r CompletionResult) UnlockedNext() bool { return r.UnlockedNextLevelID != 0 }
