package domain

import "time"

// Level 表示世界中的一个可通关的关卡。
// OrderIdx 在同一世界内是从 0 开始的稠密递增序列，游戏进行期间不可变。
type Level struct {
	ID         uint      `gorm:"primaryKey" json:"id"`                                      // 关卡唯一标识符 (主键)
	WorldID    uint      `gorm:"index;uniqueIndex:idx_world_order;not null" json:"worldId"` // 所属世界 ID
	Name       string    `gorm:"size:191;not null" json:"name"`                             // 关卡名称
	OrderIdx   int       `gorm:"uniqueIndex:idx_world_order;not null" json:"orderIdx"`      // 世界内顺序索引 (0-based)
	Difficulty string    `gorm:"size:50;default:'easy'" json:"difficulty"`                  // 难度: easy/medium/hard
	RewardXp   int       `gorm:"not null;default:0" json:"rewardXp"`                        // 通关奖励经验值
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"-"`                                   // 创建时间 (GORM 自动填充)
}

// PlayerLevel 是关卡视图的查询投影：关卡本身加上该玩家的完成/解锁状态。
// 不落库，仅用于 getUnlockedLevels 一类的读操作。
type PlayerLevel struct {
	Level
	Completed   bool       `json:"completed"`             // 该玩家是否已通关
	CompletedAt *time.Time `json:"completedAt,omitempty"` // 通关时间
	Unlocked    bool       `json:"unlocked"`              // 该玩家是否已解锁 (OrderIdx=0 隐式解锁)
}
