package game

import (
	"math/rand/v2"

	"go.uber.org/zap"
)

type StageHandler interface {
	Stage() string

	OnEnter(ctx *GameContext)
	OnHandle(ctx *GameContext, req RequestWrapper) error
	OnExit(ctx *GameContext)

	SetOnSwitch(func(nextStage string))
}

// 组队阶段：队长挑选任务队伍并发起提议。
// 游戏开始前的等待也在这个阶段进行（加入由状态机统一处理）
type lobbyStageHandler struct {
	onSwitch func(string)
}

func NewLobbyStageHandler() *lobbyStageHandler {
	return &lobbyStageHandler{}
}

func (lsh *lobbyStageHandler) Stage() string {
	return PHASE_LOBBY
}

func (lsh *lobbyStageHandler) OnEnter(ctx *GameContext) {
	// 清空上一轮残留的队伍选择和两张选票，
	// 防止旧条目泄漏到新阶段
	ctx.TeamSelection = make([]string, 0, MAX_PLAYERS)
	ctx.Votes = make(map[string]bool)
	ctx.MissionCards = make(map[string]string)
}

func (lsh *lobbyStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	if req, ok := unwrap[ToggleMemberRequest](req, REQ_TOGGLE_MEMBER); ok {
		leader := ctx.Leader()
		if leader == nil || leader.ID != req.PlayerID {
			return ErrNotLeader
		}

		if ctx.FindPlayer(req.MemberID) == nil {
			return ErrPlayerNotFound
		}

		needed, err := RequiredTeamSize(len(ctx.Players), ctx.Round)
		if err != nil {
			return err
		}

		// 已在队伍中则移除，否则在未达到人数上限时加入
		for i, id := range ctx.TeamSelection {
			if id == req.MemberID {
				ctx.TeamSelection = append(
					ctx.TeamSelection[:i],
					ctx.TeamSelection[i+1:]...,
				)
				return nil
			}
		}

		// 已达到本轮人数上限时加入是静默无效操作
		if len(ctx.TeamSelection) >= needed {
			return nil
		}

		ctx.TeamSelection = append(ctx.TeamSelection, req.MemberID)

		return nil
	}

	if req, ok := unwrap[ClearTeamRequest](req, REQ_CLEAR_TEAM); ok {
		leader := ctx.Leader()
		if leader == nil || leader.ID != req.PlayerID {
			return ErrNotLeader
		}

		ctx.TeamSelection = make([]string, 0, MAX_PLAYERS)

		return nil
	}

	if req, ok := unwrap[ProposeTeamRequest](req, REQ_PROPOSE_TEAM); ok {
		leader := ctx.Leader()
		if leader == nil || leader.ID != req.PlayerID {
			return ErrNotLeader
		}

		needed, err := RequiredTeamSize(len(ctx.Players), ctx.Round)
		if err != nil {
			return err
		}

		// 队伍人数必须恰好等于本轮要求
		if len(ctx.TeamSelection) != needed {
			return ErrPhaseMismatch
		}

		lsh.onSwitch(PHASE_VOTE)

		return nil
	}

	return ErrPhaseMismatch
}

func (lsh *lobbyStageHandler) OnExit(ctx *GameContext) {
}

func (lsh *lobbyStageHandler) SetOnSwitch(onSwitch func(string)) {
	lsh.onSwitch = onSwitch
}

// 投票阶段：全体玩家对提议的队伍表决
type voteStageHandler struct {
	onSwitch func(string)
}

func NewVoteStageHandler() *voteStageHandler {
	return &voteStageHandler{}
}

func (vsh *voteStageHandler) Stage() string {
	return PHASE_VOTE
}

func (vsh *voteStageHandler) OnEnter(ctx *GameContext) {
	// 开启一张全新的选票
	ctx.Votes = make(map[string]bool)
}

func (vsh *voteStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	req2, ok := unwrap[SubmitVoteRequest](req, REQ_SUBMIT_VOTE)
	if !ok {
		return ErrPhaseMismatch
	}

	player := ctx.FindPlayer(req2.PlayerID)
	if player == nil {
		return ErrPlayerNotFound
	}

	// 同一玩家重复投票以最后一次为准
	ctx.Votes[player.ID] = req2.Approve

	// 选票未收齐则继续等待
	if len(ctx.Votes) < len(ctx.Players) {
		return nil
	}

	if TallyVotes(ctx.Votes, len(ctx.Players)) {
		ctx.VoteTrack = 0
		vsh.onSwitch(PHASE_MISSION)
		return nil
	}

	// 提议流产：计数加一，队长顺位轮换
	ctx.VoteTrack++
	ctx.LeaderIndex = (ctx.LeaderIndex + 1) % len(ctx.Players)

	if ctx.VoteTrack >= MAX_VOTE_TRACK {
		// 连续流产达到上限，间谍直接获胜。
		// 这里强制写入三个失败并非真实的任务记录
		ctx.MissionResults = []string{RESULT_FAIL, RESULT_FAIL, RESULT_FAIL}
		vsh.onSwitch(PHASE_GAMEOVER)
		return nil
	}

	vsh.onSwitch(PHASE_LOBBY)

	return nil
}

func (vsh *voteStageHandler) OnExit(ctx *GameContext) {
}

func (vsh *voteStageHandler) SetOnSwitch(onSwitch func(string)) {
	vsh.onSwitch = onSwitch
}

// 任务阶段：队伍成员暗中打出任务牌
type missionStageHandler struct {
	onSwitch func(string)
}

func NewMissionStageHandler() *missionStageHandler {
	return &missionStageHandler{}
}

func (msh *missionStageHandler) Stage() string {
	return PHASE_MISSION
}

func (msh *missionStageHandler) OnEnter(ctx *GameContext) {
	// 开启一张全新的任务牌选票
	ctx.MissionCards = make(map[string]string)
}

func (msh *missionStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	req2, ok := unwrap[SubmitMissionRequest](req, REQ_SUBMIT_MISSION)
	if !ok {
		return ErrPhaseMismatch
	}

	player := ctx.FindPlayer(req2.PlayerID)
	if player == nil {
		return ErrPlayerNotFound
	}

	if !ctx.OnTeam(player.ID) {
		return ErrNotOnMission
	}

	card := CARD_SUCCESS
	if req2.Card == CARD_FAIL {
		card = CARD_FAIL
	}

	// 抵抗组织阵营不允许打出失败牌，在提交时拦截。
	// 该玩家的任务牌仍然处于待提交状态
	if player.Role == ROLE_RESISTANCE && card == CARD_FAIL {
		return ErrIllegalMove
	}

	ctx.MissionCards[player.ID] = card

	// 队伍成员未全部提交则继续等待
	if len(ctx.MissionCards) < len(ctx.TeamSelection) {
		return nil
	}

	// 只公布失败牌的数量，绝不关联到个人
	fails := 0
	for _, c := range ctx.MissionCards {
		if c == CARD_FAIL {
			fails++
		}
	}

	ctx.FailCount = fails

	msh.onSwitch(PHASE_RESULTS)

	return nil
}

func (msh *missionStageHandler) OnExit(ctx *GameContext) {
}

func (msh *missionStageHandler) SetOnSwitch(onSwitch func(string)) {
	msh.onSwitch = onSwitch
}

// 结算阶段：失败牌数量已公布，等待房主进入下一轮
type resultsStageHandler struct {
	onSwitch func(string)
}

func NewResultsStageHandler() *resultsStageHandler {
	return &resultsStageHandler{}
}

func (rsh *resultsStageHandler) Stage() string {
	return PHASE_RESULTS
}

func (rsh *resultsStageHandler) OnEnter(ctx *GameContext) {
}

func (rsh *resultsStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	req2, ok := unwrap[NextRoundRequest](req, REQ_NEXT_ROUND)
	if !ok {
		return ErrPhaseMismatch
	}

	host := ctx.Host()
	if host == nil || host.ID != req2.PlayerID {
		return ErrNotHost
	}

	if MissionFailed(ctx.FailCount, ctx.Round, len(ctx.Players), ctx.TwoFailsRequired) {
		ctx.MissionResults = append(ctx.MissionResults, RESULT_FAIL)
	} else {
		ctx.MissionResults = append(ctx.MissionResults, RESULT_SUCCESS)
	}

	successes, failures := 0, 0
	for _, r := range ctx.MissionResults {
		if r == RESULT_SUCCESS {
			successes++
		} else {
			failures++
		}
	}

	// 任意一方累计三次即分出胜负
	if successes >= 3 || failures >= 3 {
		rsh.onSwitch(PHASE_GAMEOVER)
		return nil
	}

	ctx.Round++
	ctx.LeaderIndex = (ctx.LeaderIndex + 1) % len(ctx.Players)
	ctx.FailCount = 0

	rsh.onSwitch(PHASE_LOBBY)

	return nil
}

func (rsh *resultsStageHandler) OnExit(ctx *GameContext) {
}

func (rsh *resultsStageHandler) SetOnSwitch(onSwitch func(string)) {
	rsh.onSwitch = onSwitch
}

// 结束阶段：除了房主重新开局（由状态机统一处理）外不接受任何动作
type gameoverStageHandler struct {
	onSwitch func(string)
}

func NewGameoverStageHandler() *gameoverStageHandler {
	return &gameoverStageHandler{}
}

func (gsh *gameoverStageHandler) Stage() string {
	return PHASE_GAMEOVER
}

func (gsh *gameoverStageHandler) OnEnter(ctx *GameContext) {
}

func (gsh *gameoverStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) error {
	return ErrPhaseMismatch
}

func (gsh *gameoverStageHandler) OnExit(ctx *GameContext) {
}

func (gsh *gameoverStageHandler) SetOnSwitch(onSwitch func(string)) {
	gsh.onSwitch = onSwitch
}

// onPlayerJoin 处理加入请求并通过 AckCh 应答。
// 只有组队阶段且未满员时才接纳新玩家
func onPlayerJoin(ctx *GameContext, req *JoinRoomRequest) error {
	if ctx.Phase != PHASE_LOBBY {
		sendJoinAck(req.AckCh, JoinRoomAck{OK: false, ErrMsg: ErrGameInProgress.Error()})
		return ErrGameInProgress
	}

	if len(ctx.Players) >= MAX_PLAYERS {
		sendJoinAck(req.AckCh, JoinRoomAck{OK: false, ErrMsg: ErrRoomFull.Error()})
		return ErrRoomFull
	}

	player := &Player{
		ID:        GenID(),
		Name:      req.JoinerName,
		Role:      ROLE_UNSET,
		Connected: true,
		RespCh:    req.RespCh,
	}

	ctx.Players = append(ctx.Players, player)

	snapshot := ctx.Snapshot(player.ID)
	sendJoinAck(req.AckCh, JoinRoomAck{
		OK:    true,
		State: &snapshot,
		Me:    snapshot.Me,
	})

	zap.L().Info(
		"玩家加入房间",
		zap.String("room_code", ctx.RoomCode),
		zap.String("player_id", player.ID),
		zap.String("player_name", player.Name),
	)

	return nil
}

func sendJoinAck(ackCh chan JoinRoomAck, ack JoinRoomAck) {
	if ackCh == nil {
		return
	}

	select {
	case ackCh <- ack:
	default:
		zap.L().Warn("发送加入应答失败：应答通道已满")
	}
}

// onPlayerDisconnect 把玩家标记为离线。
// 玩家实体始终保留在名单中，队长轮换顺序和进行中的
// 队伍、选票成员关系都不受影响
func onPlayerDisconnect(ctx *GameContext, req *DisconnectRequest) error {
	player := ctx.FindPlayer(req.PlayerID)
	if player == nil {
		return ErrPlayerNotFound
	}

	// 通道不匹配说明是已失效的旧连接，直接忽略
	if player.RespCh != req.RespCh {
		zap.L().Debug(
			"忽略旧连接的断开请求",
			zap.String("room_code", ctx.RoomCode),
			zap.String("player_id", player.ID),
		)
		return nil
	}

	close(player.RespCh)
	player.RespCh = nil
	player.Connected = false

	zap.L().Info(
		"玩家连接断开，保留玩家实体",
		zap.String("room_code", ctx.RoomCode),
		zap.String("player_id", player.ID),
		zap.String("player_name", player.Name),
	)

	return nil
}

// onStartGame 开始（或重新开始）一局游戏：重置全部轮次状态，
// 随机选出首任队长并重新发牌。任何阶段都允许房主执行
func onStartGame(ctx *GameContext, req *StartGameRequest) error {
	host := ctx.Host()
	if host == nil || host.ID != req.PlayerID {
		return ErrNotHost
	}

	if len(ctx.Players) < MIN_PLAYERS {
		return ErrInsufficientPlayers
	}

	ctx.Round = 1
	ctx.VoteTrack = 0
	ctx.FailCount = 0
	ctx.MissionResults = make([]string, 0, MAX_ROUNDS)
	ctx.TeamSelection = make([]string, 0, MAX_PLAYERS)
	ctx.Votes = make(map[string]bool)
	ctx.MissionCards = make(map[string]string)
	ctx.LeaderIndex = rand.IntN(len(ctx.Players))

	DealRoles(ctx.Players)

	// 给每个玩家单播自己的阵营；间谍额外收到其余间谍的昵称
	for _, p := range ctx.Players {
		otherSpies := make([]string, 0)

		if p.Role == ROLE_SPY {
			for _, other := range ctx.Players {
				if other.Role == ROLE_SPY && other.ID != p.ID {
					otherSpies = append(otherSpies, other.Name)
				}
			}
		}

		ctx.UnicastResp(p.ID, WrapResponse(
			RESP_PRIVATE_ROLE,
			PrivateRoleNotification{
				Role:       p.Role,
				OtherSpies: otherSpies,
			},
		))
	}

	ctx.Phase = PHASE_LOBBY

	zap.L().Info(
		"游戏开始，已重新发牌",
		zap.String("room_code", ctx.RoomCode),
		zap.Int("player_count", len(ctx.Players)),
		zap.Int("leader_index", ctx.LeaderIndex),
	)

	return nil
}
