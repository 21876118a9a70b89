package domain

import "time"

// Player 表示一个玩家。
// 身份认证在别处完成，这里只消费已验证的玩家身份；该模型主要服务于
// 进度记录的外键关联和排行榜查询里的用户名展示。
type Player struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 玩家唯一标识符 (主键)
	Username  string    `gorm:"uniqueIndex;size:191;not null" json:"username"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"` // 创建时间 (GORM 自动填充)
}
