package game

// 游戏总体分为 5 个阶段，分别是：
// 1. 组队阶段（Lobby）：玩家可以加入房间，队长挑选任务队伍
// 2. 投票阶段（Vote）：全体玩家对队长提议的队伍进行表决
// 3. 任务阶段（Mission）：队伍成员暗中打出任务牌
// 4. 结算阶段（Results）：公布失败牌数量，等待房主进入下一轮
// 5. 结束阶段（GameOver）：一方达成 3 次胜利，或提案连续流产 5 次
const (
	PHASE_LOBBY    = "Lobby"
	PHASE_VOTE     = "Vote"
	PHASE_MISSION  = "Mission"
	PHASE_RESULTS  = "Results"
	PHASE_GAMEOVER = "GameOver"
)

// 玩家阵营，发牌前为 Unset
const (
	ROLE_UNSET      = "Unset"
	ROLE_SPY        = "Spy"
	ROLE_RESISTANCE = "Resistance"
)

// 任务牌
const (
	CARD_SUCCESS = "Success"
	CARD_FAIL    = "Fail"
)

// 任务结果，记录在 mission_results 列表里
const (
	RESULT_SUCCESS = "S"
	RESULT_FAIL    = "F"
)

const (
	// 开局所需的最少玩家数
	MIN_PLAYERS = 5
	// 单个房间的玩家上限
	MAX_PLAYERS = 10
	// 连续流产提案达到该值时间谍直接获胜
	MAX_VOTE_TRACK = 5
	// 最多进行的任务轮数
	MAX_ROUNDS = 5
	// 昵称的最大长度（按 rune 计）
	MAX_NAME_LEN = 24
)

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"is_host"`
	Connected bool   `json:"connected"`

	// 阵营绝不参与序列化，只通过单播的 PrivateRole 消息下发
	Role string `json:"-"`

	RespCh chan ResponseWrapper `json:"-"`
}

// RoleKnown 表示该玩家是否已经被发过牌
func (p *Player) RoleKnown() bool {
	return p.Role != "" && p.Role != ROLE_UNSET
}
