package game

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// GameMachine 是房间的会话状态机，负责串行消费该房间的
// 全部请求并推进阶段。一个房间对应一个 goroutine，
// 不同房间之间互不阻塞
type GameMachine struct {
	ctx     *GameContext
	handler StageHandler

	// 该房间所有连接的请求汇总到这一个通道
	reqCh chan RequestWrapper
	// 结束通道，用于通知状态机退出事件循环
	doneCh chan struct{}

	// 在线连接数，由清理协程跨协程读取
	liveConns atomic.Int32

	createdAt time.Time
}

func NewGameMachine(ctx *GameContext, doneCh chan struct{}) *GameMachine {
	gm := &GameMachine{
		ctx:       ctx,
		handler:   NewLobbyStageHandler(),
		reqCh:     make(chan RequestWrapper, 64),
		doneCh:    doneCh,
		createdAt: time.Now(),
	}

	gm.handler.SetOnSwitch(func(nextStage string) {
		gm.ctx.Phase = nextStage
	})

	gm.liveConns.Store(int32(ctx.LiveConnectionCount()))

	return gm
}

func (gm *GameMachine) ReqCh() chan RequestWrapper {
	return gm.reqCh
}

func (gm *GameMachine) LiveConnections() int {
	return int(gm.liveConns.Load())
}

func (gm *GameMachine) CreatedAt() time.Time {
	return gm.createdAt
}

func (gm *GameMachine) Start() {
	// 初始阶段的 OnEnter 在收到任何请求之前执行
	gm.handler.OnEnter(gm.ctx)

	for {
		var req RequestWrapper

		select {
		case req = <-gm.reqCh:
			zap.L().Debug(
				"接收到房间请求",
				zap.String("room_code", gm.ctx.RoomCode),
				zap.String("request_type", req.ReqType),
			)
		case <-gm.doneCh:
			zap.L().Info(
				"收到退出信号，结束会话状态机",
				zap.String("room_code", gm.ctx.RoomCode),
			)
			return
		}

		gm.step(req)
	}
}

// step 串行处理一个请求：先分发，失败时把错误单播给发起者
// 且不广播；成功时执行可能的阶段切换并广播一次快照
func (gm *GameMachine) step(req RequestWrapper) error {
	err := gm.dispatch(req)
	if err != nil {
		zap.L().Debug(
			"处理请求被拒绝",
			zap.String("room_code", gm.ctx.RoomCode),
			zap.String("stage", gm.handler.Stage()),
			zap.String("request_type", req.ReqType),
			zap.Error(err),
		)

		if actorID := actorOf(req); actorID != "" {
			gm.ctx.UnicastResp(actorID, WrapErrResponse(err.Error()))
		}

		return err
	}

	// 检查阶段是否发生变化
	if gm.ctx.Phase != gm.handler.Stage() {
		gm.switchStage()
		gm.handler.OnEnter(gm.ctx)
	}

	// 每次成功变更恰好广播一次变更后的快照
	gm.ctx.BroadcastSnapshot()

	return nil
}

// dispatch 把加入、断开和开局这三类与具体阶段无关的请求
// 在状态机层面统一处理，其余请求交给当前阶段的处理器
func (gm *GameMachine) dispatch(req RequestWrapper) error {
	if req2, ok := unwrap[JoinRoomRequest](req, REQ_JOIN_ROOM); ok {
		err := onPlayerJoin(gm.ctx, req2)
		if err == nil {
			gm.liveConns.Add(1)
		}

		return err
	}

	if req2, ok := unwrap[DisconnectRequest](req, REQ_DISCONNECT); ok {
		err := onPlayerDisconnect(gm.ctx, req2)
		if err == nil {
			gm.liveConns.Store(int32(gm.ctx.LiveConnectionCount()))
		}

		return err
	}

	if req2, ok := unwrap[StartGameRequest](req, REQ_START_GAME); ok {
		return onStartGame(gm.ctx, req2)
	}

	return gm.handler.OnHandle(gm.ctx, req)
}

func (gm *GameMachine) switchStage() {
	// 执行当前处理器的 OnExit
	gm.handler.OnExit(gm.ctx)

	// 根据新阶段创建对应的处理器
	var newHandler StageHandler

	switch gm.ctx.Phase {
	case PHASE_LOBBY:
		newHandler = NewLobbyStageHandler()
	case PHASE_VOTE:
		newHandler = NewVoteStageHandler()
	case PHASE_MISSION:
		newHandler = NewMissionStageHandler()
	case PHASE_RESULTS:
		newHandler = NewResultsStageHandler()
	case PHASE_GAMEOVER:
		newHandler = NewGameoverStageHandler()
	default:
		zap.L().Error(
			"未知的游戏阶段",
			zap.String("room_code", gm.ctx.RoomCode),
			zap.String("phase", gm.ctx.Phase),
		)
		return
	}

	newHandler.SetOnSwitch(func(nextStage string) {
		gm.ctx.Phase = nextStage
	})

	gm.handler = newHandler
}

// actorOf 提取请求的发起者，用于把拒绝原因单播回去。
// 加入请求通过 AckCh 应答，没有发起者
func actorOf(req RequestWrapper) string {
	type actor struct {
		PlayerID string `json:"player_id"`
	}

	switch req.ReqType {
	case REQ_JOIN_ROOM, REQ_CREATE_ROOM:
		return ""
	}

	if req.Native != nil {
		switch native := req.Native.(type) {
		case *StartGameRequest:
			return native.PlayerID
		case *ToggleMemberRequest:
			return native.PlayerID
		case *ClearTeamRequest:
			return native.PlayerID
		case *ProposeTeamRequest:
			return native.PlayerID
		case *SubmitVoteRequest:
			return native.PlayerID
		case *SubmitMissionRequest:
			return native.PlayerID
		case *NextRoundRequest:
			return native.PlayerID
		case *DisconnectRequest:
			return native.PlayerID
		default:
			return ""
		}
	}

	var a actor
	if err := json.Unmarshal(req.Data, &a); err != nil {
		return ""
	}

	return a.PlayerID
}
