package game

// CreateRoom 和 JoinRoom 是仅有的两个带确认的请求，
// 必须作为连接的首帧发送，由传输层同步等待应答
type CreateRoomRequest struct {
	CreatorName      string `json:"creator_name"`
	TwoFailsRequired bool   `json:"two_fails_required"`

	RespCh chan ResponseWrapper `json:"-"`
}

type JoinRoomRequest struct {
	RoomCode   string `json:"room_code"`
	JoinerName string `json:"joiner_name"`

	RespCh chan ResponseWrapper `json:"-"`
	AckCh  chan JoinRoomAck     `json:"-"`
}

type JoinRoomAck struct {
	OK     bool                   `json:"ok"`
	State  *RoomStateNotification `json:"state,omitempty"`
	Me     *MeView                `json:"me,omitempty"`
	ErrMsg string                 `json:"error,omitempty"`
}

type StartGameRequest struct {
	PlayerID string `json:"player_id"`
}

type ToggleMemberRequest struct {
	PlayerID string `json:"player_id"`
	MemberID string `json:"member_id"`
}

type ClearTeamRequest struct {
	PlayerID string `json:"player_id"`
}

type ProposeTeamRequest struct {
	PlayerID string `json:"player_id"`
}

type SubmitVoteRequest struct {
	PlayerID string `json:"player_id"`
	Approve  bool   `json:"approve"`
}

type SubmitMissionRequest struct {
	PlayerID string `json:"player_id"`
	Card     string `json:"card"`
}

type NextRoundRequest struct {
	PlayerID string `json:"player_id"`
}

type DisconnectRequest struct {
	PlayerID string `json:"player_id"`

	RespCh chan ResponseWrapper `json:"-"`
}

// PrivateRoleNotification 在每次发牌后单播给对应玩家。
// 只有间谍的 other_spies 会被填充
type PrivateRoleNotification struct {
	Role       string   `json:"role"`
	OtherSpies []string `json:"other_spies"`
}

// 广播快照中的公开玩家信息，绝不包含阵营
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// 快照中按接收者个性化的私有部分
type MeView struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"is_host"`
	RoleKnown bool   `json:"role_known"`
}

// RoomStateNotification 是每次成功变更后广播的房间快照
type RoomStateNotification struct {
	RoomCode         string       `json:"room_code"`
	Players          []PlayerView `json:"players"`
	Phase            string       `json:"phase"`
	Round            int          `json:"round"`
	LeaderIndex      int          `json:"leader_index"`
	VoteTrack        int          `json:"vote_track"`
	MissionResults   []string     `json:"mission_results"`
	TeamSelection    []string     `json:"team_selection"`
	TwoFailsRequired bool         `json:"two_fails_required"`
	FailCount        int          `json:"fail_count"`
	Me               *MeView      `json:"me,omitempty"`
}
