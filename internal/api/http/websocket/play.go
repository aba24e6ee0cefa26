package websocket

import (
	"encoding/json"
	"time"

	"resistance-be/internal/service/game"
	"resistance-be/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

// PlayGame 处理一条玩家连接的完整生命周期：
// 首帧必须是 CreateRoom 或 JoinRoom（带确认应答），
// 之后读协程把请求转发给房间状态机，写协程把状态机的
// 响应推回客户端；连接断开时向状态机提交断开请求
func PlayGame(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("升级到WebSocket失败", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}

		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		conn.SetPongHandler(heartbeatHandler(conn))

		clientIP := ctx.RemoteAddr()

		// 读取首帧，必须是建房或加入请求
		_, msg, err := conn.ReadMessage()
		if err != nil {
			zap.L().Error(
				"读取首帧失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			return
		}

		var wrapper game.RequestWrapper

		if err := json.Unmarshal(msg, &wrapper); err != nil {
			zap.L().Error(
				"解析首帧失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			return
		}

		respCh := make(chan game.ResponseWrapper, 64)

		var (
			ack   game.JoinRoomAck
			reqCh chan game.RequestWrapper
		)

		switch wrapper.ReqType {
		case game.REQ_CREATE_ROOM:
			req := game.TryUnwrapCreateRoomRequest(wrapper)
			if req == nil {
				return
			}

			req.RespCh = respCh
			ack, reqCh, err = appState.RoomSvc.CreateRoom(req)

		case game.REQ_JOIN_ROOM:
			req := game.TryUnwrapJoinRoomRequest(wrapper)
			if req == nil {
				return
			}

			req.RespCh = respCh
			ack, reqCh, err = appState.RoomSvc.JoinRoom(req)

		default:
			zap.L().Error(
				"首帧不是建房或加入请求",
				zap.String("client_ip", clientIP),
				zap.String("request_type", wrapper.ReqType),
			)
			return
		}

		if err != nil {
			// 房间不存在等同步错误，通过确认应答返回后关闭连接
			conn.WriteJSON(game.WrapResponse(
				game.RESP_JOIN_ACK,
				game.JoinRoomAck{OK: false, ErrMsg: err.Error()},
			))
			return
		}

		if err := conn.WriteJSON(game.WrapResponse(game.RESP_JOIN_ACK, ack)); err != nil {
			zap.L().Error(
				"发送确认应答失败",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			return
		}

		if !ack.OK || ack.Me == nil {
			// 加入被拒绝，连接到此为止
			return
		}

		playerID := ack.Me.PlayerID
		roomCode := ack.State.RoomCode

		zap.L().Info(
			"玩家连接已绑定到房间",
			zap.String("client_ip", clientIP),
			zap.String("room_code", roomCode),
			zap.String("player_id", playerID),
			zap.String("player_name", ack.Me.Name),
		)

		// 写协程的退出信号
		writeDoneCh := make(chan struct{})
		defer close(writeDoneCh)

		// 写入协程
		go func() {
			ticker := time.NewTicker(HEARTBEAT_INTERVAL)
			defer ticker.Stop()

			for {
				select {
				case <-writeDoneCh:
					zap.L().Debug(
						"WebSocket写入协程退出",
						zap.String("client_ip", clientIP),
					)
					return

				case <-ticker.C:
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						zap.L().Error(
							"发送心跳失败",
							zap.String("client_ip", clientIP),
							zap.Error(err),
						)
						return
					}

					conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

				case resp, ok := <-respCh:
					// 通道已关闭说明状态机已处理断开，写协程退出
					if !ok {
						zap.L().Debug(
							"响应通道已关闭，退出写协程",
							zap.String("client_ip", clientIP),
						)
						return
					}

					if err := conn.WriteJSON(resp); err != nil {
						zap.L().Error(
							"发送消息失败",
							zap.String("client_ip", clientIP),
							zap.Error(err),
						)
						return
					}
				}
			}
		}()

		// 读取协程（主协程）
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					zap.L().Error(
						"读取消息失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
				}

				break
			}

			var wrapper game.RequestWrapper

			if err := json.Unmarshal(msg, &wrapper); err != nil {
				zap.L().Error(
					"解析消息失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)

				respCh <- game.WrapErrResponse("无效的请求格式")

				continue
			}

			// 将解析后的请求发送到房间状态机
			select {
			case reqCh <- wrapper:
				zap.L().Debug(
					"转发请求到房间状态机",
					zap.String("client_ip", clientIP),
					zap.String("room_code", roomCode),
					zap.String("request_type", wrapper.ReqType),
				)
			default:
				zap.L().Error(
					"转发请求失败：房间请求通道已满",
					zap.String("client_ip", clientIP),
					zap.String("room_code", roomCode),
				)

				respCh <- game.WrapErrResponse("房间繁忙，请稍后再试")
			}
		}

		// 读循环退出，表示客户端断开连接。
		// 提交断开请求：玩家实体保留，只把连接标记置为离线
		disconnectReq := game.DisconnectRequest{
			PlayerID: playerID,
			RespCh:   respCh,
		}

		disconnectWrapper := game.RequestWrapper{
			ReqType: game.REQ_DISCONNECT,
			Native:  &disconnectReq,
		}

		select {
		case reqCh <- disconnectWrapper:
			zap.L().Info(
				"客户端连接断开，已提交断开请求",
				zap.String("client_ip", clientIP),
				zap.String("room_code", roomCode),
				zap.String("player_id", playerID),
			)
		default:
			zap.L().Warn(
				"提交断开请求失败：房间请求通道已满",
				zap.String("room_code", roomCode),
				zap.String("player_id", playerID),
			)
		}
	}
}
