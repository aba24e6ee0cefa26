package service

import (
	"strings"
	"sync"
	"time"

	"resistance-be/internal/service/game"

	"go.uber.org/zap"
)

// RoomService 是进程级的房间注册表：持有房间码到会话的映射，
// 负责生成不重复的房间码、转发加入请求和回收失效房间。
// 房间状态本身只由各房间自己的 goroutine 修改
type RoomService struct {
	state *roomServiceState
}

type roomSession struct {
	machine *game.GameMachine
	reqCh   chan game.RequestWrapper
	doneCh  chan struct{}
}

type roomServiceState struct {
	mu sync.RWMutex

	// 从房间码到会话的映射
	sessions map[string]*roomSession

	cleanUpDone chan struct{}
}

func NewRoomService() *RoomService {
	state := &roomServiceState{
		sessions:    make(map[string]*roomSession),
		cleanUpDone: make(chan struct{}),
	}

	// 启动一个 goroutine 定期清理过期的房间
	go startCleanupLoop(state)

	return &RoomService{
		state: state,
	}
}

func startCleanupLoop(state *roomServiceState) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-state.cleanUpDone:
			return

		case <-ticker.C:
			state.mu.Lock()

			for code, session := range state.sessions {
				if !isSessionExpired(session.machine) {
					continue
				}

				zap.S().Infof("房间 %s 已无在线连接，开始清理", code)

				// 通知对应的房间 goroutine 退出
				close(session.doneCh)

				delete(state.sessions, code)
			}

			state.mu.Unlock()
		}
	}
}

func (rs *RoomService) Close() {
	close(rs.state.cleanUpDone)
}

// CreateRoom 生成唯一房间码，创建以发起者为房主的房间并
// 启动其会话 goroutine。返回的确认中带有初始快照
func (rs *RoomService) CreateRoom(req *game.CreateRoomRequest) (game.JoinRoomAck, chan game.RequestWrapper, error) {
	host := &game.Player{
		ID:        game.GenID(),
		Name:      normalizeName(req.CreatorName, "Host"),
		IsHost:    true,
		Role:      game.ROLE_UNSET,
		Connected: true,
		RespCh:    req.RespCh,
	}

	rs.state.mu.Lock()

	// 生成房间码，撞码则重试
	code := randomRoomCode()
	for _, exists := rs.state.sessions[code]; exists; _, exists = rs.state.sessions[code] {
		code = randomRoomCode()
	}

	ctx := game.NewGameContext(code, req.TwoFailsRequired, host)

	doneCh := make(chan struct{})
	machine := game.NewGameMachine(ctx, doneCh)

	session := &roomSession{
		machine: machine,
		reqCh:   machine.ReqCh(),
		doneCh:  doneCh,
	}

	rs.state.sessions[code] = session

	// 快照在 goroutine 启动前构建，此时没有并发访问
	snapshot := ctx.Snapshot(host.ID)

	go machine.Start()

	rs.state.mu.Unlock()

	zap.S().Infof("房间 %s 由 %s 创建", code, host.Name)

	return game.JoinRoomAck{
		OK:    true,
		State: &snapshot,
		Me:    snapshot.Me,
	}, session.reqCh, nil
}

// JoinRoom 把加入请求转发给目标房间的会话 goroutine 并等待
// 确认。房间不存在、已开局或已满员都会反映在确认里
func (rs *RoomService) JoinRoom(req *game.JoinRoomRequest) (game.JoinRoomAck, chan game.RequestWrapper, error) {
	code := strings.ToUpper(req.RoomCode)
	req.RoomCode = code
	req.JoinerName = normalizeName(req.JoinerName, "Player")

	rs.state.mu.RLock()
	session := rs.state.sessions[code]
	rs.state.mu.RUnlock()

	if session == nil {
		return game.JoinRoomAck{}, nil, game.ErrRoomNotFound
	}

	ackCh := make(chan game.JoinRoomAck, 1)
	req.AckCh = ackCh

	wrapper := game.RequestWrapper{
		ReqType: game.REQ_JOIN_ROOM,
		Native:  req,
	}

	zap.S().Debugf("房间 %s 收到加入请求：%s", code, req.JoinerName)

	reqTimer := time.NewTimer(5 * time.Second)

	select {
	case session.reqCh <- wrapper:
		if !reqTimer.Stop() {
			select {
			case <-reqTimer.C:
			default:
			}
		}

	case <-reqTimer.C:
		zap.S().Warnf("房间 %s 无法及时处理加入请求，%s 发送失败", code, req.JoinerName)
		return game.JoinRoomAck{}, nil, game.ErrRoomNotFound
	}

	resTimer := time.NewTimer(5 * time.Second)

	select {
	case ack := <-ackCh:
		if !resTimer.Stop() {
			select {
			case <-resTimer.C:
			default:
			}
		}

		if ack.OK {
			zap.S().Infof("房间 %s 接纳玩家 %s", code, req.JoinerName)
		} else {
			zap.S().Warnf("房间 %s 拒绝 %s 加入：%s", code, req.JoinerName, ack.ErrMsg)
		}

		return ack, session.reqCh, nil

	case <-resTimer.C:
		zap.S().Warnf("房间 %s 加入请求应答超时：%s", code, req.JoinerName)
		return game.JoinRoomAck{}, nil, game.ErrRoomNotFound
	}
}
