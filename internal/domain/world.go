package domain

import "time"

// World 表示一个主题世界，由一组按顺序排列的关卡组成。
type World struct {
	ID          uint      `gorm:"primaryKey" json:"id"`                      // 世界唯一标识符 (主键)
	Name        string    `gorm:"size:191;not null" json:"name"`             // 世界名称
	Slug        string    `gorm:"uniqueIndex;size:191;not null" json:"slug"` // URL 友好的唯一标识
	Description string    `gorm:"type:text" json:"description"`              // 世界描述
	Icon        string    `gorm:"size:191" json:"icon"`                      // 前端展示用的图标名
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`                   // 创建时间 (GORM 自动填充)
}

// WorldAll 是排行榜查询的哨兵值，表示跨所有世界聚合。
const WorldAll uint = 0
