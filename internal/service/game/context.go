package game

import (
	"go.uber.org/zap"
)

// GameContext 持有一个房间的全部可变状态。
// 只有房间自己的 goroutine 会访问它，因此不需要锁；
// 所有修改都经由 GameMachine 的事件循环串行进行
type GameContext struct {
	RoomCode string
	Phase    string

	// 玩家顺序即队长轮换顺序，整局游戏内不会删除元素
	Players []*Player

	Round       int
	LeaderIndex int
	VoteTrack   int

	MissionResults []string
	TeamSelection  []string

	// 表决与任务牌的两张临时选票，进入对应阶段时重建
	Votes        map[string]bool
	MissionCards map[string]string

	// 建房时固定的规则开关
	TwoFailsRequired bool

	// 最近一次任务公布的失败牌数量
	FailCount int
}

func NewGameContext(roomCode string, twoFailsRequired bool, host *Player) *GameContext {
	return &GameContext{
		RoomCode:         roomCode,
		Phase:            PHASE_LOBBY,
		Players:          []*Player{host},
		Round:            1,
		LeaderIndex:      0,
		VoteTrack:        0,
		MissionResults:   make([]string, 0, MAX_ROUNDS),
		TeamSelection:    make([]string, 0, MAX_PLAYERS),
		Votes:            make(map[string]bool),
		MissionCards:     make(map[string]string),
		TwoFailsRequired: twoFailsRequired,
	}
}

func (gc *GameContext) FindPlayer(playerID string) *Player {
	for _, p := range gc.Players {
		if p.ID == playerID {
			return p
		}
	}

	return nil
}

func (gc *GameContext) Host() *Player {
	for _, p := range gc.Players {
		if p.IsHost {
			return p
		}
	}

	return nil
}

func (gc *GameContext) Leader() *Player {
	if gc.LeaderIndex < 0 || gc.LeaderIndex >= len(gc.Players) {
		return nil
	}

	return gc.Players[gc.LeaderIndex]
}

func (gc *GameContext) OnTeam(playerID string) bool {
	for _, id := range gc.TeamSelection {
		if id == playerID {
			return true
		}
	}

	return false
}

// Snapshot 从同一份权威状态计算公开投影，并为指定接收者
// 附上私有的 me 字段；meID 为空时返回纯公开版本
func (gc *GameContext) Snapshot(meID string) RoomStateNotification {
	players := make([]PlayerView, 0, len(gc.Players))
	for _, p := range gc.Players {
		players = append(players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.Connected,
		})
	}

	snapshot := RoomStateNotification{
		RoomCode:         gc.RoomCode,
		Players:          players,
		Phase:            gc.Phase,
		Round:            gc.Round,
		LeaderIndex:      gc.LeaderIndex,
		VoteTrack:        gc.VoteTrack,
		MissionResults:   append([]string{}, gc.MissionResults...),
		TeamSelection:    append([]string{}, gc.TeamSelection...),
		TwoFailsRequired: gc.TwoFailsRequired,
		FailCount:        gc.FailCount,
	}

	if me := gc.FindPlayer(meID); me != nil {
		snapshot.Me = &MeView{
			PlayerID:  me.ID,
			Name:      me.Name,
			IsHost:    me.IsHost,
			RoleKnown: me.RoleKnown(),
		}
	}

	return snapshot
}

// BroadcastSnapshot 给每个在线玩家发送按接收者个性化的快照。
// 通道发送不阻塞，实际的网络写入由各连接的写协程完成
func (gc *GameContext) BroadcastSnapshot() {
	for _, p := range gc.Players {
		if p.RespCh == nil {
			continue
		}

		gc.UnicastResp(p.ID, WrapResponse(RESP_ROOM_STATE, gc.Snapshot(p.ID)))
	}
}

func (gc *GameContext) UnicastResp(playerID string, resp ResponseWrapper) {
	player := gc.FindPlayer(playerID)
	if player == nil || player.RespCh == nil {
		zap.L().Warn(
			"无法找到玩家进行单播响应",
			zap.String("room_code", gc.RoomCode),
			zap.String("player_id", playerID),
		)
		return
	}

	select {
	case player.RespCh <- resp:
		zap.L().Debug(
			"发送单播响应成功",
			zap.String("room_code", gc.RoomCode),
			zap.String("player_id", playerID),
			zap.String("response_type", resp.RespType),
		)
	default:
		zap.L().Warn(
			"发送单播响应失败：玩家响应通道已满",
			zap.String("room_code", gc.RoomCode),
			zap.String("player_id", playerID),
		)
	}
}

// LiveConnectionCount 统计仍有连接的玩家数量
func (gc *GameContext) LiveConnectionCount() int {
	count := 0
	for _, p := range gc.Players {
		if p.Connected {
			count++
		}
	}

	return count
}
