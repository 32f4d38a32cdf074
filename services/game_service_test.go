package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/network"
	"github.com/wfunc/callout/persistence"
	"github.com/wfunc/callout/room"
)

func TestGameService_AliceAndBobPlayARound(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.connect("a"), h.connect("b")

	code, err := h.svc.CreateRoom("a")
	require.NoError(t, err)
	var created room.RoomCreatedPayload
	alice.last(t, network.EventRoomCreated, &created)
	assert.Equal(t, code, created.Code)

	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")

	hands := map[string]room.JoinedRoomPayload{}
	for nick, c := range map[string]*clientConn{"Alice": alice, "Bob": bob} {
		var joined room.JoinedRoomPayload
		c.last(t, network.EventJoinedRoom, &joined)
		assert.Len(t, joined.Hand, 5)
		hands[nick] = joined
	}
	var list room.PlayerListPayload
	alice.last(t, network.EventUpdatePlayerList, &list)
	assert.Len(t, list.Players, 2)

	require.NoError(t, h.svc.StartGame("a", network.StartGameRequest{RoomCode: code}))
	var turn room.StartTurnPayload
	bob.last(t, network.EventStartTurn, &turn)

	current, other, currentConn := "Alice", "Bob", "a"
	if turn.CurrentTurn == "Bob" {
		current, other, currentConn = "Bob", "Alice", "b"
	}
	card := hands[current].Hand[0]

	require.NoError(t, h.svc.Challenge(currentConn, network.ChallengeRequest{
		RoomCode:   code,
		Challenger: current,
		Challenged: other,
		Card:       card.Text,
	}))
	for _, c := range []*clientConn{alice, bob} {
		var ch room.ChallengePayload
		c.last(t, network.EventChallenge, &ch)
		assert.Equal(t, current, ch.Challenger)
		assert.Equal(t, other, ch.Challenged)
		assert.Equal(t, card.ID, ch.Card.ID)
	}

	require.Equal(t, 1, h.scheduler.fireAll())
	var open room.VotingOpenPayload
	bob.last(t, network.EventVotingOpen, &open)
	assert.Equal(t, []string{current}, open.Voters)

	require.NoError(t, h.svc.Vote(currentConn, network.VoteRequest{RoomCode: code, VoterID: current, Verdict: network.Ballot(true)}))

	var result room.VoteResultPayload
	alice.last(t, network.EventVoteResult, &result)
	assert.Equal(t, models.OutcomeSuccess, result.Result)
	assert.Equal(t, 1, result.Scores[other])
	assert.Equal(t, 0, result.Scores[current])

	bob.last(t, network.EventStartTurn, &turn)
	assert.Equal(t, other, turn.CurrentTurn)
	assert.Equal(t, 1, h.votes.value())

	require.Eventually(t, func() bool { return len(h.store.Records()) == 1 }, time.Second, 5*time.Millisecond)
	rec := h.store.Records()[0]
	assert.Equal(t, current, rec.Challenger)
	assert.Equal(t, models.OutcomeSuccess, rec.Outcome)
}

func TestGameService_IdentityComesFromBinding(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.connect("b")
	code, _ := h.svc.CreateRoom("a")
	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")

	err := h.svc.Challenge("a", network.ChallengeRequest{RoomCode: code, Challenger: "Bob", Challenged: "Alice", Card: "x"})
	assert.ErrorIs(t, err, room.ErrInvalidAction)

	err = h.svc.Vote("b", network.VoteRequest{RoomCode: code, VoterID: "Alice", Verdict: network.Ballot(true)})
	assert.ErrorIs(t, err, room.ErrInvalidAction)

	err = h.svc.StartGame("a", network.StartGameRequest{RoomCode: "zzzzzz"})
	assert.ErrorIs(t, err, room.ErrInvalidAction, "payload room must match the bound room")

	require.NoError(t, h.svc.StartGame("a", network.StartGameRequest{RoomCode: " " + code + " "}))
}

func TestGameService_RequiresBinding(t *testing.T) {
	h := newHarness(t)
	h.connect("a")

	assert.ErrorIs(t, h.svc.StartGame("a", network.StartGameRequest{}), ErrNotInRoom)
	assert.ErrorIs(t, h.svc.Vote("a", network.VoteRequest{Verdict: network.Ballot(true)}), ErrNotInRoom)
	assert.ErrorIs(t, h.svc.JoinRoom("a", network.JoinRoomRequest{RoomCode: "nope00", Nickname: "Alice"}), room.ErrRoomNotFound)

	code, _ := h.svc.CreateRoom("a")
	assert.ErrorIs(t, h.svc.JoinRoom("a", network.JoinRoomRequest{RoomCode: code, Nickname: "  "}), room.ErrInvalidAction)
	assert.NoError(t, h.svc.LeaveRoom("a"), "leaving while unseated is a no-op")
}

func TestGameService_VoteWithoutVerdictIsRejected(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.connect("b")
	code, _ := h.svc.CreateRoom("a")
	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")
	require.NoError(t, h.svc.StartGame("a", network.StartGameRequest{}))

	r, err := h.rooms.GetRoom(code)
	require.NoError(t, err)
	snap := r.Snapshot()
	current, other, conn := "Alice", "Bob", "a"
	if snap.CurrentTurn == "Bob" {
		current, other, conn = "Bob", "Alice", "b"
	}
	require.NoError(t, h.svc.Challenge(conn, network.ChallengeRequest{Challenged: other, Card: snap.Hands[current][0].ID}))
	require.Equal(t, 1, h.scheduler.fireAll())

	var decoded network.VoteRequest
	for _, body := range []string{`{}`, `{"roomCode":"` + code + `"}`} {
		require.NoError(t, json.Unmarshal([]byte(body), &decoded))
		err := h.svc.Vote(conn, decoded)
		assert.ErrorIs(t, err, room.ErrInvalidAction, body)
	}
	assert.Empty(t, r.Snapshot().Votes, "a ballot without a verdict is not counted")
	assert.Equal(t, 0, h.votes.value())

	require.NoError(t, h.svc.Vote(conn, network.VoteRequest{Verdict: network.Ballot(true)}))
	assert.Equal(t, 1, r.Snapshot().Scores[other])
}

// A real timer, slow sockets and players voting and leaving at once must
// still resolve the challenge exactly once without stalling the room.
func TestGameService_LiveRoundRacesTimersVotesAndLeaves(t *testing.T) {
	settings := room.DefaultSettings()
	settings.ResponseWindow = 5 * time.Millisecond
	settings.VotingWindow = 15 * time.Millisecond
	h := newLiveHarness(t, settings)

	nicks := []string{"Alice", "Bob", "Carol", "Dave", "Erin"}
	conns := make(map[string]*clientConn, len(nicks))
	for _, nick := range nicks {
		c := h.connect(nick)
		c.delay = time.Millisecond
		conns[nick] = c
	}
	code, err := h.svc.CreateRoom("Alice")
	require.NoError(t, err)
	for _, nick := range nicks {
		h.join(t, nick, code, nick)
	}
	require.NoError(t, h.svc.StartGame("Alice", network.StartGameRequest{}))

	r, err := h.rooms.GetRoom(code)
	require.NoError(t, err)
	snap := r.Snapshot()
	challenger := snap.CurrentTurn
	var challenged string
	var bystanders []string
	for _, nick := range nicks {
		switch {
		case nick == challenger:
		case challenged == "":
			challenged = nick
		default:
			bystanders = append(bystanders, nick)
		}
	}
	leaver := bystanders[0]

	require.NoError(t, h.svc.Challenge(challenger, network.ChallengeRequest{
		Challenged: challenged,
		Card:       snap.Hands[challenger][0].ID,
	}))
	require.Eventually(t, func() bool { return conns[challenger].count(network.EventVotingOpen) == 1 },
		time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, voter := range append([]string{challenger}, bystanders[1:]...) {
			voter := voter
			wg.Add(1)
			go func() {
				defer wg.Done()
				// a late vote may lose to the voting timer
				_ = h.svc.Vote(voter, network.VoteRequest{Verdict: network.Ballot(true)})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.svc.Disconnect(leaver)
		}()
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("room stalled while votes, a leave and the voting timer raced")
	}

	for _, nick := range nicks {
		if nick == leaver {
			continue
		}
		require.Eventually(t, func() bool { return conns[nick].count(network.EventVoteResult) == 1 },
			2*time.Second, time.Millisecond, nick)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.rooms.WaitRecorded(ctx))
	require.Len(t, h.store.Records(), 1)

	after := r.Snapshot()
	assert.Empty(t, after.Phase)
	assert.Len(t, after.Players, len(nicks)-1)
	assert.NotEqual(t, challenger, after.CurrentTurn)
	for _, nick := range nicks {
		assert.LessOrEqual(t, conns[nick].count(network.EventVoteResult), 1, nick)
	}
}

func TestGameService_JoinElsewhereLeavesFirst(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.connect("b")
	first, _ := h.svc.CreateRoom("a")
	second, _ := h.svc.CreateRoom("a")

	h.join(t, "a", first, "Alice")
	h.join(t, "b", first, "Bob")
	h.join(t, "a", second, "Alice")

	assert.Equal(t, []string{"Bob"}, h.players(t, first))
	assert.Equal(t, []string{"Alice"}, h.players(t, second))

	code, nick, ok := h.sessions.Binding("a")
	require.True(t, ok)
	assert.Equal(t, second, code)
	assert.Equal(t, "Alice", nick)
}

func TestGameService_TakeoverUnbindsOldConnection(t *testing.T) {
	h := newHarness(t)
	old := h.connect("a1")
	h.connect("a2")
	h.connect("b")
	code, _ := h.svc.CreateRoom("b")
	h.join(t, "a1", code, "Alice")
	h.join(t, "b", code, "Bob")

	h.join(t, "a2", code, "Alice")

	var notice room.ErrorPayload
	old.last(t, network.EventError, &notice)
	assert.NotEmpty(t, notice.Message)

	_, _, bound := h.sessions.Binding("a1")
	assert.False(t, bound)
	assert.ErrorIs(t, h.svc.StartGame("a1", network.StartGameRequest{}), ErrNotInRoom)

	h.svc.Disconnect("a1")
	assert.Equal(t, []string{"Alice", "Bob"}, h.players(t, code), "stale disconnect keeps the seat")

	require.NoError(t, h.svc.StartGame("a2", network.StartGameRequest{}))
}

func TestGameService_DisconnectFreesSeatAndEmptyRoom(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	bob := h.connect("b")
	code, _ := h.svc.CreateRoom("a")
	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")

	h.svc.Disconnect("a")
	assert.Equal(t, []string{"Bob"}, h.players(t, code))
	var list room.PlayerListPayload
	bob.last(t, network.EventUpdatePlayerList, &list)
	assert.Len(t, list.Players, 1)

	h.svc.Disconnect("b")
	_, err := h.rooms.GetRoom(code)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.Equal(t, 0, h.sessions.Count())

	h.svc.Disconnect("b")
}

func TestGameService_ExplicitLeave(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.connect("b")
	code, _ := h.svc.CreateRoom("a")
	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")

	require.NoError(t, h.svc.LeaveRoom("a"))
	assert.Equal(t, []string{"Bob"}, h.players(t, code))
	_, _, bound := h.sessions.Binding("a")
	assert.False(t, bound)
	assert.Equal(t, 2, h.sessions.Count(), "leaving keeps the connection open")
}

func TestGameService_JoinFromVanishedConnection(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	code, _ := h.svc.CreateRoom("a")

	require.NoError(t, h.svc.JoinRoom("ghost", network.JoinRoomRequest{RoomCode: code, Nickname: "Ghost"}))
	_, err := h.rooms.GetRoom(code)
	assert.ErrorIs(t, err, room.ErrRoomNotFound, "the seat is undone and the room emptied")
}

func TestGameService_ConcurrentJoins(t *testing.T) {
	h := newHarness(t)
	h.connect("host")
	code, _ := h.svc.CreateRoom("host")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		h.connect(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.svc.JoinRoom(id, network.JoinRoomRequest{RoomCode: code, Nickname: "p-" + id}))
		}()
	}
	wg.Wait()

	assert.Len(t, h.players(t, code), n)
	for i := 0; i < n; i++ {
		got, _, ok := h.sessions.Binding(fmt.Sprintf("c%d", i))
		require.True(t, ok)
		assert.Equal(t, code, got)
	}
}

func TestGameService_ListRooms(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.connect("b")
	code, _ := h.svc.CreateRoom("a")
	h.join(t, "a", code, "Alice")
	h.join(t, "b", code, "Bob")
	require.NoError(t, h.svc.StartGame("b", network.StartGameRequest{}))

	rooms := h.svc.ListRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, code, rooms[0].Code)
	assert.Equal(t, []string{"Alice", "Bob"}, rooms[0].Players)
	assert.True(t, rooms[0].Started)
	assert.NotEmpty(t, rooms[0].CurrentTurn)
}

func TestPlayerService_GetPlayerStats(t *testing.T) {
	store := seededStore(t)
	svc := NewPlayerService(store)
	ctx := context.Background()

	stats, err := svc.GetPlayerStats(ctx, " Bob ")
	require.NoError(t, err)
	assert.Equal(t, &models.PlayerStats{Nickname: "Bob", Challenged: 2, Completed: 1, Failed: 1}, stats)

	stats, err = svc.GetPlayerStats(ctx, "Nobody")
	require.NoError(t, err)
	assert.Equal(t, &models.PlayerStats{Nickname: "Nobody"}, stats)

	_, err = svc.GetPlayerStats(ctx, "")
	assert.ErrorIs(t, err, ErrNicknameRequired)
}

func seededStore(t *testing.T) *persistence.MemoryStore {
	t.Helper()
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	for _, outcome := range []string{models.OutcomeSuccess, models.OutcomeFailure} {
		require.NoError(t, store.RecordChallenge(ctx, models.ChallengeRecord{
			RoomCode:   "abc123",
			Challenger: "Alice",
			Challenged: "Bob",
			Outcome:    outcome,
		}))
	}
	return store
}
