package domain

// Position 是玩家在关卡画布中的坐标，纯粹的在线状态，不做持久化。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultSpawnPosition 是刚加入世界的玩家的初始出生点。
func DefaultSpawnPosition() Position {
	return Position{X: 50, Y: 50}
}
