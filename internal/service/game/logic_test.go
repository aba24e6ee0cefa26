package game

import (
	"errors"
	"fmt"
	"testing"
)

func testPlayer(i int, host bool) *Player {
	return &Player{
		ID:        fmt.Sprintf("p%d", i),
		Name:      fmt.Sprintf("Player%d", i),
		IsHost:    host,
		Role:      ROLE_UNSET,
		Connected: true,
		RespCh:    make(chan ResponseWrapper, 256),
	}
}

// newTestMachine 构建一个含 n 个玩家的房间状态机，p1 为房主
func newTestMachine(n int) *GameMachine {
	gm := NewGameMachine(
		NewGameContext("TEST", false, testPlayer(1, true)),
		make(chan struct{}),
	)

	for i := 2; i <= n; i++ {
		gm.ctx.Players = append(gm.ctx.Players, testPlayer(i, false))
	}

	return gm
}

func mustStep(t *testing.T, gm *GameMachine, req RequestWrapper) {
	t.Helper()

	if err := gm.step(req); err != nil {
		t.Fatalf("step(%s) failed: %v", req.ReqType, err)
	}
}

func startGame(t *testing.T, gm *GameMachine, playerID string) {
	t.Helper()

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_START_GAME,
		Native:  &StartGameRequest{PlayerID: playerID},
	})
}

func toggleMember(t *testing.T, gm *GameMachine, playerID, memberID string) {
	t.Helper()

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_TOGGLE_MEMBER,
		Data:    mustMarshal(ToggleMemberRequest{PlayerID: playerID, MemberID: memberID}),
	})
}

func proposeTeam(t *testing.T, gm *GameMachine, playerID string) {
	t.Helper()

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_PROPOSE_TEAM,
		Data:    mustMarshal(ProposeTeamRequest{PlayerID: playerID}),
	})
}

func allVote(t *testing.T, gm *GameMachine, approve bool) {
	t.Helper()

	for _, p := range gm.ctx.Players {
		mustStep(t, gm, RequestWrapper{
			ReqType: REQ_SUBMIT_VOTE,
			Data:    mustMarshal(SubmitVoteRequest{PlayerID: p.ID, Approve: approve}),
		})
	}
}

func submitMission(gm *GameMachine, playerID, card string) error {
	return gm.step(RequestWrapper{
		ReqType: REQ_SUBMIT_MISSION,
		Data:    mustMarshal(SubmitMissionRequest{PlayerID: playerID, Card: card}),
	})
}

func drainPrivateRoles(ch chan ResponseWrapper) []PrivateRoleNotification {
	roles := make([]PrivateRoleNotification, 0, 1)

	for {
		select {
		case resp := <-ch:
			if resp.RespType != RESP_PRIVATE_ROLE {
				continue
			}
			if notif, ok := resp.Data.(PrivateRoleNotification); ok {
				roles = append(roles, notif)
			}
		default:
			return roles
		}
	}
}

func TestStartGameDealsRolesAndNotifiesPrivately(t *testing.T) {
	gm := newTestMachine(5)

	startGame(t, gm, "p1")

	if gm.ctx.Phase != PHASE_LOBBY {
		t.Fatalf("phase after start = %q, want %q", gm.ctx.Phase, PHASE_LOBBY)
	}

	spies := 0
	for _, p := range gm.ctx.Players {
		if !p.RoleKnown() {
			t.Fatalf("player %s has no role after deal", p.ID)
		}
		if p.Role == ROLE_SPY {
			spies++
		}
	}

	if spies != 2 {
		t.Fatalf("5-player deal produced %d spies, want 2", spies)
	}

	// 每个玩家恰好收到一条私有阵营消息；
	// 间谍能看到另一名间谍的昵称，抵抗组织什么都看不到
	for _, p := range gm.ctx.Players {
		roles := drainPrivateRoles(p.RespCh)
		if len(roles) != 1 {
			t.Fatalf("player %s received %d private role messages, want 1", p.ID, len(roles))
		}

		notif := roles[0]
		if notif.Role != p.Role {
			t.Errorf("player %s notified of role %q, actual role %q", p.ID, notif.Role, p.Role)
		}

		if p.Role == ROLE_SPY {
			if len(notif.OtherSpies) != 1 {
				t.Errorf("spy %s sees %d other spies, want 1", p.ID, len(notif.OtherSpies))
			}
			if len(notif.OtherSpies) == 1 && notif.OtherSpies[0] == p.Name {
				t.Errorf("spy %s sees their own name in other_spies", p.ID)
			}
		} else if len(notif.OtherSpies) != 0 {
			t.Errorf("resistance %s sees spy names: %v", p.ID, notif.OtherSpies)
		}
	}
}

func TestStartGamePermissions(t *testing.T) {
	gm := newTestMachine(5)

	err := gm.step(RequestWrapper{
		ReqType: REQ_START_GAME,
		Native:  &StartGameRequest{PlayerID: "p2"},
	})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host start: got %v, want ErrNotHost", err)
	}

	small := newTestMachine(4)

	err = small.step(RequestWrapper{
		ReqType: REQ_START_GAME,
		Native:  &StartGameRequest{PlayerID: "p1"},
	})
	if !errors.Is(err, ErrInsufficientPlayers) {
		t.Fatalf("4-player start: got %v, want ErrInsufficientPlayers", err)
	}
}

func TestLobbyTeamSelection(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	// 非队长的操作一律拒绝
	err := gm.step(RequestWrapper{
		ReqType: REQ_TOGGLE_MEMBER,
		Data:    mustMarshal(ToggleMemberRequest{PlayerID: "p2", MemberID: "p3"}),
	})
	if !errors.Is(err, ErrNotLeader) {
		t.Fatalf("non-leader toggle: got %v, want ErrNotLeader", err)
	}

	// 未知玩家不能入选
	err = gm.step(RequestWrapper{
		ReqType: REQ_TOGGLE_MEMBER,
		Data:    mustMarshal(ToggleMemberRequest{PlayerID: "p1", MemberID: "nobody"}),
	})
	if !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown member toggle: got %v, want ErrPlayerNotFound", err)
	}

	// 加入、再次切换即移除
	toggleMember(t, gm, "p1", "p2")
	toggleMember(t, gm, "p1", "p2")
	if len(gm.ctx.TeamSelection) != 0 {
		t.Fatalf("toggle twice left selection %v", gm.ctx.TeamSelection)
	}

	// 第 1 轮 5 人局需要 2 人，超出上限的加入是静默无效操作
	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	toggleMember(t, gm, "p1", "p3")
	if len(gm.ctx.TeamSelection) != 2 {
		t.Fatalf("selection exceeded required size: %v", gm.ctx.TeamSelection)
	}

	// 人数不符时不能提议
	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_CLEAR_TEAM,
		Data:    mustMarshal(ClearTeamRequest{PlayerID: "p1"}),
	})
	if len(gm.ctx.TeamSelection) != 0 {
		t.Fatalf("clear_team left selection %v", gm.ctx.TeamSelection)
	}

	err = gm.step(RequestWrapper{
		ReqType: REQ_PROPOSE_TEAM,
		Data:    mustMarshal(ProposeTeamRequest{PlayerID: "p1"}),
	})
	if err == nil {
		t.Fatal("propose with empty selection should fail")
	}
	if gm.ctx.Phase != PHASE_LOBBY {
		t.Fatalf("failed propose changed phase to %q", gm.ctx.Phase)
	}

	// 人数恰好相等时进入投票阶段
	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")
	if gm.ctx.Phase != PHASE_VOTE {
		t.Fatalf("phase after propose = %q, want %q", gm.ctx.Phase, PHASE_VOTE)
	}
}

func TestFullRoundHappyPath(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")

	allVote(t, gm, true)

	if gm.ctx.Phase != PHASE_MISSION {
		t.Fatalf("phase after unanimous approval = %q, want %q", gm.ctx.Phase, PHASE_MISSION)
	}
	if gm.ctx.VoteTrack != 0 {
		t.Fatalf("vote track after approval = %d, want 0", gm.ctx.VoteTrack)
	}

	if err := submitMission(gm, "p1", CARD_SUCCESS); err != nil {
		t.Fatalf("p1 mission card: %v", err)
	}
	if gm.ctx.Phase != PHASE_MISSION {
		t.Fatalf("phase advanced before all cards were in: %q", gm.ctx.Phase)
	}
	if err := submitMission(gm, "p2", CARD_SUCCESS); err != nil {
		t.Fatalf("p2 mission card: %v", err)
	}

	if gm.ctx.Phase != PHASE_RESULTS {
		t.Fatalf("phase after all cards = %q, want %q", gm.ctx.Phase, PHASE_RESULTS)
	}
	if gm.ctx.FailCount != 0 {
		t.Fatalf("fail count = %d, want 0", gm.ctx.FailCount)
	}

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerID: "p1"}),
	})

	if gm.ctx.Phase != PHASE_LOBBY {
		t.Fatalf("phase after next_round = %q, want %q", gm.ctx.Phase, PHASE_LOBBY)
	}
	if gm.ctx.Round != 2 {
		t.Fatalf("round = %d, want 2", gm.ctx.Round)
	}
	if gm.ctx.LeaderIndex != 1 {
		t.Fatalf("leader index = %d, want 1", gm.ctx.LeaderIndex)
	}
	if len(gm.ctx.MissionResults) != 1 || gm.ctx.MissionResults[0] != RESULT_SUCCESS {
		t.Fatalf("mission results = %v, want [S]", gm.ctx.MissionResults)
	}
	if len(gm.ctx.TeamSelection) != 0 || len(gm.ctx.Votes) != 0 || len(gm.ctx.MissionCards) != 0 {
		t.Fatal("ballots not reset on new round")
	}
}

func TestVoteLastWriteWinsPerPlayer(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")

	for i := 0; i < 3; i++ {
		mustStep(t, gm, RequestWrapper{
			ReqType: REQ_SUBMIT_VOTE,
			Data:    mustMarshal(SubmitVoteRequest{PlayerID: "p1", Approve: i%2 == 0}),
		})
	}

	if len(gm.ctx.Votes) != 1 {
		t.Fatalf("repeated votes created %d ballot entries, want 1", len(gm.ctx.Votes))
	}
	if gm.ctx.Phase != PHASE_VOTE {
		t.Fatalf("repeated votes advanced phase to %q", gm.ctx.Phase)
	}
	if gm.ctx.Votes["p1"] != true {
		t.Fatal("last vote should win")
	}
}

func TestRejectedProposalsForceSpyVictory(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	for i := 0; i < MAX_VOTE_TRACK; i++ {
		leaderID := gm.ctx.Players[gm.ctx.LeaderIndex].ID

		toggleMember(t, gm, leaderID, "p1")
		toggleMember(t, gm, leaderID, "p2")
		proposeTeam(t, gm, leaderID)
		allVote(t, gm, false)

		wantLeader := (i + 1) % 5
		if gm.ctx.LeaderIndex != wantLeader {
			t.Fatalf("after rejection %d leader index = %d, want %d", i+1, gm.ctx.LeaderIndex, wantLeader)
		}
		if gm.ctx.VoteTrack != i+1 {
			t.Fatalf("after rejection %d vote track = %d, want %d", i+1, gm.ctx.VoteTrack, i+1)
		}
	}

	if gm.ctx.Phase != PHASE_GAMEOVER {
		t.Fatalf("phase after 5 rejections = %q, want %q", gm.ctx.Phase, PHASE_GAMEOVER)
	}

	// 间谍通过流产提案直接获胜时强制写入三个失败记录
	want := []string{RESULT_FAIL, RESULT_FAIL, RESULT_FAIL}
	if len(gm.ctx.MissionResults) != len(want) {
		t.Fatalf("mission results = %v, want %v", gm.ctx.MissionResults, want)
	}
	for i, r := range want {
		if gm.ctx.MissionResults[i] != r {
			t.Fatalf("mission results = %v, want %v", gm.ctx.MissionResults, want)
		}
	}

	// 结束阶段不再接受常规动作
	err := gm.step(RequestWrapper{
		ReqType: REQ_SUBMIT_VOTE,
		Data:    mustMarshal(SubmitVoteRequest{PlayerID: "p1", Approve: true}),
	})
	if !errors.Is(err, ErrPhaseMismatch) {
		t.Fatalf("vote after game over: got %v, want ErrPhaseMismatch", err)
	}
}

func TestRestartAfterGameOverResetsEverything(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	for i := 0; i < MAX_VOTE_TRACK; i++ {
		leaderID := gm.ctx.Players[gm.ctx.LeaderIndex].ID
		toggleMember(t, gm, leaderID, "p1")
		toggleMember(t, gm, leaderID, "p2")
		proposeTeam(t, gm, leaderID)
		allVote(t, gm, false)
	}

	if gm.ctx.Phase != PHASE_GAMEOVER {
		t.Fatalf("setup failed, phase = %q", gm.ctx.Phase)
	}

	// start 同时也是重开：完全重置轮次状态并重新发牌
	startGame(t, gm, "p1")

	if gm.ctx.Phase != PHASE_LOBBY {
		t.Fatalf("phase after restart = %q, want %q", gm.ctx.Phase, PHASE_LOBBY)
	}
	if gm.ctx.Round != 1 || gm.ctx.VoteTrack != 0 || gm.ctx.FailCount != 0 {
		t.Fatalf(
			"restart left round=%d voteTrack=%d failCount=%d",
			gm.ctx.Round, gm.ctx.VoteTrack, gm.ctx.FailCount,
		)
	}
	if len(gm.ctx.MissionResults) != 0 {
		t.Fatalf("restart left mission results %v", gm.ctx.MissionResults)
	}

	spies := 0
	for _, p := range gm.ctx.Players {
		if !p.RoleKnown() {
			t.Fatalf("player %s has no role after redeal", p.ID)
		}
		if p.Role == ROLE_SPY {
			spies++
		}
	}
	if spies != 2 {
		t.Fatalf("redeal produced %d spies, want 2", spies)
	}
}

func TestResistanceFailCardRejected(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	// 固定一组阵营，保证场上有确定的抵抗组织成员
	roles := map[string]string{
		"p1": ROLE_RESISTANCE,
		"p2": ROLE_RESISTANCE,
		"p3": ROLE_SPY,
		"p4": ROLE_SPY,
		"p5": ROLE_RESISTANCE,
	}
	for _, p := range gm.ctx.Players {
		p.Role = roles[p.ID]
	}

	toggleMember(t, gm, "p1", "p2")
	toggleMember(t, gm, "p1", "p3")
	proposeTeam(t, gm, "p1")
	allVote(t, gm, true)

	// 抵抗组织成员打失败牌在提交时即被拦截，不进选票
	err := submitMission(gm, "p2", CARD_FAIL)
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("resistance fail card: got %v, want ErrIllegalMove", err)
	}
	if len(gm.ctx.MissionCards) != 0 {
		t.Fatalf("illegal card was recorded: %v", gm.ctx.MissionCards)
	}
	if gm.ctx.Phase != PHASE_MISSION {
		t.Fatalf("illegal card advanced phase to %q", gm.ctx.Phase)
	}

	// 队伍外的玩家不能提交任务牌
	err = submitMission(gm, "p4", CARD_SUCCESS)
	if !errors.Is(err, ErrNotOnMission) {
		t.Fatalf("off-team card: got %v, want ErrNotOnMission", err)
	}

	// 该玩家补交合法牌后选票才算收齐
	if err := submitMission(gm, "p2", CARD_SUCCESS); err != nil {
		t.Fatalf("legal success card: %v", err)
	}
	if err := submitMission(gm, "p3", CARD_FAIL); err != nil {
		t.Fatalf("spy fail card: %v", err)
	}

	if gm.ctx.Phase != PHASE_RESULTS {
		t.Fatalf("phase = %q, want %q", gm.ctx.Phase, PHASE_RESULTS)
	}
	if gm.ctx.FailCount != 1 {
		t.Fatalf("fail count = %d, want 1", gm.ctx.FailCount)
	}

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerID: "p1"}),
	})

	if len(gm.ctx.MissionResults) != 1 || gm.ctx.MissionResults[0] != RESULT_FAIL {
		t.Fatalf("mission results = %v, want [F]", gm.ctx.MissionResults)
	}
}

func TestNextRoundPermissions(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	// 组队阶段不接受 next_round
	err := gm.step(RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerID: "p1"}),
	})
	if !errors.Is(err, ErrPhaseMismatch) {
		t.Fatalf("next_round in lobby: got %v, want ErrPhaseMismatch", err)
	}

	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")
	allVote(t, gm, true)
	if err := submitMission(gm, "p1", CARD_SUCCESS); err != nil {
		t.Fatal(err)
	}
	if err := submitMission(gm, "p2", CARD_SUCCESS); err != nil {
		t.Fatal(err)
	}

	err = gm.step(RequestWrapper{
		ReqType: REQ_NEXT_ROUND,
		Data:    mustMarshal(NextRoundRequest{PlayerID: "p2"}),
	})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host next_round: got %v, want ErrNotHost", err)
	}
	if gm.ctx.Phase != PHASE_RESULTS {
		t.Fatalf("rejected next_round changed phase to %q", gm.ctx.Phase)
	}
}

func joinWrapper(name string) (RequestWrapper, chan JoinRoomAck) {
	ackCh := make(chan JoinRoomAck, 1)

	req := &JoinRoomRequest{
		RoomCode:   "TEST",
		JoinerName: name,
		RespCh:     make(chan ResponseWrapper, 16),
		AckCh:      ackCh,
	}

	return RequestWrapper{ReqType: REQ_JOIN_ROOM, Native: req}, ackCh
}

func TestJoinOnlyInLobbyAndBelowCapacity(t *testing.T) {
	gm := newTestMachine(5)

	wrapper, ackCh := joinWrapper("Newcomer")
	mustStep(t, gm, wrapper)

	ack := <-ackCh
	if !ack.OK || ack.Me == nil {
		t.Fatalf("lobby join rejected: %+v", ack)
	}
	if len(gm.ctx.Players) != 6 {
		t.Fatalf("player count = %d, want 6", len(gm.ctx.Players))
	}
	if ack.Me.IsHost {
		t.Fatal("joiner must not become host")
	}

	// 进入投票阶段后加入被拒绝
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0
	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")

	wrapper, ackCh = joinWrapper("TooLate")
	if err := gm.step(wrapper); !errors.Is(err, ErrGameInProgress) {
		t.Fatalf("mid-game join: got %v, want ErrGameInProgress", err)
	}

	ack = <-ackCh
	if ack.OK {
		t.Fatal("mid-game join should be rejected in the ack")
	}
	if len(gm.ctx.Players) != 6 {
		t.Fatalf("rejected join changed player count to %d", len(gm.ctx.Players))
	}

	// 满员房间加入被拒绝
	full := newTestMachine(MAX_PLAYERS)

	wrapper, ackCh = joinWrapper("Eleventh")
	if err := full.step(wrapper); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("full-room join: got %v, want ErrRoomFull", err)
	}

	ack = <-ackCh
	if ack.OK {
		t.Fatal("full-room join should be rejected in the ack")
	}
}

func TestDisconnectKeepsRosterOrder(t *testing.T) {
	gm := newTestMachine(5)
	startGame(t, gm, "p1")
	gm.ctx.LeaderIndex = 0

	p3 := gm.ctx.FindPlayer("p3")

	mustStep(t, gm, RequestWrapper{
		ReqType: REQ_DISCONNECT,
		Native:  &DisconnectRequest{PlayerID: "p3", RespCh: p3.RespCh},
	})

	if len(gm.ctx.Players) != 5 {
		t.Fatalf("disconnect removed a player, count = %d", len(gm.ctx.Players))
	}
	if p3.Connected {
		t.Fatal("disconnected player still marked connected")
	}
	if gm.ctx.Players[2].ID != "p3" {
		t.Fatal("disconnect changed roster order")
	}
	if gm.LiveConnections() != 4 {
		t.Fatalf("live connections = %d, want 4", gm.LiveConnections())
	}

	// 断线玩家仍然参与队长轮换
	toggleMember(t, gm, "p1", "p1")
	toggleMember(t, gm, "p1", "p2")
	proposeTeam(t, gm, "p1")
	allVote(t, gm, false)

	if gm.ctx.LeaderIndex != 1 {
		t.Fatalf("leader index = %d, want 1", gm.ctx.LeaderIndex)
	}
}
