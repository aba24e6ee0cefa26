package game

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 请求类型
const (
	REQ_CREATE_ROOM    = "CreateRoom"
	REQ_JOIN_ROOM      = "JoinRoom"
	REQ_START_GAME     = "StartGame"
	REQ_TOGGLE_MEMBER  = "ToggleMember"
	REQ_CLEAR_TEAM     = "ClearTeam"
	REQ_PROPOSE_TEAM   = "ProposeTeam"
	REQ_SUBMIT_VOTE    = "SubmitVote"
	REQ_SUBMIT_MISSION = "SubmitMission"
	REQ_NEXT_ROUND     = "NextRound"
	// 连接断开时由传输层构造，客户端不会发送
	REQ_DISCONNECT = "Disconnect"
)

type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`

	// 服务端内部构造的请求直接携带原生数据，不经过 JSON 解析
	Native any `json:"-"`
}

// unwrap 尝试把请求还原成指定类型。优先使用服务端内部的
// 原生数据，否则反序列化客户端发来的 JSON
func unwrap[T any](w RequestWrapper, reqType string) (*T, bool) {
	if w.ReqType != reqType {
		return nil, false
	}

	if w.Native != nil {
		req, ok := w.Native.(*T)
		return req, ok
	}

	var req T

	if err := json.Unmarshal(w.Data, &req); err != nil {
		zap.L().Error(
			"解析请求数据失败",
			zap.String("request_type", reqType),
			zap.Error(err),
		)
		return nil, false
	}

	return &req, true
}

// TryUnwrapCreateRoomRequest 供传输层解析首帧
func TryUnwrapCreateRoomRequest(w RequestWrapper) *CreateRoomRequest {
	req, ok := unwrap[CreateRoomRequest](w, REQ_CREATE_ROOM)
	if !ok {
		return nil
	}

	return req
}

// TryUnwrapJoinRoomRequest 供传输层解析首帧
func TryUnwrapJoinRoomRequest(w RequestWrapper) *JoinRoomRequest {
	req, ok := unwrap[JoinRoomRequest](w, REQ_JOIN_ROOM)
	if !ok {
		return nil
	}

	return req
}

// 响应类型
const (
	RESP_ERROR = "Error"

	RESP_JOIN_ACK     = "JoinAck"
	RESP_ROOM_STATE   = "RoomState"
	RESP_PRIVATE_ROLE = "PrivateRole"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data"`
	ErrMsg   string `json:"error_message,omitempty"`
}

func WrapResponse(respType string, data any) ResponseWrapper {
	return ResponseWrapper{
		RespType: respType,
		Data:     data,
	}
}

func WrapErrResponse(errMsg string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		ErrMsg:   errMsg,
	}
}
