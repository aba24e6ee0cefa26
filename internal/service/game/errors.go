package game

import "errors"

// 拒绝动作时返回的哨兵错误。状态机对非法动作一律不改状态、
// 不广播，只把错误单播给发起者
var (
	ErrRoomNotFound        = errors.New("房间不存在")
	ErrGameInProgress      = errors.New("游戏已经开始，无法加入")
	ErrRoomFull            = errors.New("房间已满")
	ErrNotLeader           = errors.New("只有当前队长可以执行该操作")
	ErrNotHost             = errors.New("只有房主可以执行该操作")
	ErrPhaseMismatch       = errors.New("当前阶段不支持该操作")
	ErrNotOnMission        = errors.New("你不在本轮任务队伍中")
	ErrIllegalMove         = errors.New("你的阵营不允许打出失败牌")
	ErrInsufficientPlayers = errors.New("玩家数量不足 5 人，无法开始游戏")
	ErrPlayerNotFound      = errors.New("玩家不存在")
)
