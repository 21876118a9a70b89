package domain

import "sort"

// LeaderboardEntry 表示玩家在某个世界排行榜中的一行。
// Rank 是派生值，不落库，总是在排序之后重新赋值。
type LeaderboardEntry struct {
	PlayerID uint   `json:"playerId"`
	Username string `json:"username"`
	TotalXp  int    `json:"xp"`
	Rank     int    `json:"rank"`
}

// SortLeaderboard 按 TotalXp 降序排序，经验值相同时按 PlayerID 升序
// 打破平局，保证排序结果确定。
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalXp != entries[j].TotalXp {
			return entries[i].TotalXp > entries[j].TotalXp
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
}

// AssignRanks 在排序后的切片上写入 1-based 名次。
func AssignRanks(entries []LeaderboardEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
