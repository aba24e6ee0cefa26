package game

import "math/rand/v2"

// TallyVotes 判定一次完整表决是否通过。
// 规则：赞成票严格多于反对票才通过，平票视为否决
func TallyVotes(votes map[string]bool, totalPlayers int) bool {
	yes := 0
	for _, approve := range votes {
		if approve {
			yes++
		}
	}

	return yes > totalPlayers-yes
}

// MissionFailed 判定一次任务是否失败。
// 规则：仅当开启双失败规则、玩家数 >= 7 且为第 4 轮时，
// 需要两张及以上失败牌才算失败；其余情况一张失败牌即失败
func MissionFailed(failCount, round, playerCount int, twoFailsRequired bool) bool {
	if twoFailsRequired && playerCount >= 7 && round == 4 {
		return failCount >= 2
	}

	return failCount >= 1
}

// DealRoles 为玩家列表重新分配阵营，完全覆盖旧的分配。
// 通过对下标切片做无偏洗牌（Fisher-Yates）抽取间谍，
// 返回所有间谍的昵称列表
func DealRoles(players []*Player) []string {
	spiesNeeded, err := SpyCount(len(players))
	if err != nil {
		// 玩家数量在开局时已校验过，这里不应该发生
		return nil
	}

	idxs := make([]int, len(players))
	for i := range idxs {
		idxs[i] = i
	}

	rand.Shuffle(len(idxs), func(i, j int) {
		idxs[i], idxs[j] = idxs[j], idxs[i]
	})

	for _, p := range players {
		p.Role = ROLE_RESISTANCE
	}

	spyNames := make([]string, 0, spiesNeeded)
	for _, i := range idxs[:spiesNeeded] {
		players[i].Role = ROLE_SPY
		spyNames = append(spyNames, players[i].Name)
	}

	return spyNames
}
