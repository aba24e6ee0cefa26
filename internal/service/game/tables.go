package game

import "fmt"

// 固定配置表：每轮任务所需的队伍人数，按玩家总数索引
var teamSizes = map[int][MAX_ROUNDS]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// 固定配置表：间谍数量，按玩家总数索引
var spyCounts = map[int]int{
	5:  2,
	6:  2,
	7:  3,
	8:  3,
	9:  3,
	10: 4,
}

// RequiredTeamSize 返回指定轮次的任务队伍人数
func RequiredTeamSize(playerCount, round int) (int, error) {
	sizes, ok := teamSizes[playerCount]
	if !ok {
		return 0, fmt.Errorf("无效的玩家数量: %d", playerCount)
	}

	if round < 1 || round > MAX_ROUNDS {
		return 0, fmt.Errorf("无效的轮次: %d", round)
	}

	return sizes[round-1], nil
}

// SpyCount 返回指定玩家数量下的间谍数量
func SpyCount(playerCount int) (int, error) {
	count, ok := spyCounts[playerCount]
	if !ok {
		return 0, fmt.Errorf("无效的玩家数量: %d", playerCount)
	}

	return count, nil
}
