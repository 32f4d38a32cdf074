package rpc

import (
	"context"
	"net"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/callout/broadcast"
	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/persistence"
	"github.com/wfunc/callout/room"
	"github.com/wfunc/callout/services"
	"github.com/wfunc/callout/session"
	"github.com/wfunc/callout/timer"
)

func newStatsService(t *testing.T) (*StatsService, *room.Manager) {
	t.Helper()
	store := persistence.NewMemoryStore()
	require.NoError(t, store.RecordChallenge(context.Background(), models.ChallengeRecord{
		RoomCode:   "abc123",
		Challenger: "Alice",
		Challenged: "Bob",
		Outcome:    models.OutcomeSuccess,
	}))

	sessions := session.NewManager()
	gateway := broadcast.NewRoomBroadcaster(nil, sessions)
	timers := timer.NewTimerManager()
	t.Cleanup(timers.Stop)
	rooms := room.NewRoomManager(room.DefaultSettings(), room.Deps{
		Catalog:     cards.Default(),
		Broadcaster: gateway,
		Scheduler:   timers,
	})
	gateway.SetRoomManager(rooms)

	games := services.NewGameService(rooms, sessions, gateway, nil)
	return NewStatsService(services.NewPlayerService(store), games), rooms
}

// pipeClient serves one in-memory connection and returns a client for it.
func pipeClient(t *testing.T, ss *StatsService) *rpc.Client {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.Register(ss))

	serverSide, clientSide := net.Pipe()
	go srv.ServeConn(serverSide)
	client := rpc.NewClient(clientSide)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStatsService_GetPlayerStats(t *testing.T) {
	ss, _ := newStatsService(t)
	client := pipeClient(t, ss)

	var reply GetPlayerStatsReply
	require.NoError(t, client.Call("StatsService.GetPlayerStats", &GetPlayerStatsArgs{Nickname: "Bob"}, &reply))
	assert.Equal(t, models.PlayerStats{Nickname: "Bob", Challenged: 1, Completed: 1}, reply.Stats)

	err := client.Call("StatsService.GetPlayerStats", &GetPlayerStatsArgs{}, &reply)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nickname is required")
}

func TestStatsService_ListRooms(t *testing.T) {
	ss, rooms := newStatsService(t)
	r := rooms.CreateRoom()
	_, err := r.Join("c1", "Alice")
	require.NoError(t, err)

	client := pipeClient(t, ss)
	var reply ListRoomsReply
	require.NoError(t, client.Call("StatsService.ListRooms", &ListRoomsArgs{}, &reply))
	require.Len(t, reply.Rooms, 1)
	assert.Equal(t, r.Code(), reply.Rooms[0].Code)
	assert.Equal(t, []string{"Alice"}, reply.Rooms[0].Players)
	assert.False(t, reply.Rooms[0].Started)
}

func TestServer_StartStop(t *testing.T) {
	ss, _ := newStatsService(t)
	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Register(ss))

	done := make(chan struct{})
	go func() {
		srv.Start()
		close(done)
	}()

	client, err := rpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	var reply ListRoomsReply
	require.NoError(t, client.Call("StatsService.ListRooms", &ListRoomsArgs{}, &reply))
	assert.Empty(t, reply.Rooms)
	client.Close()

	srv.Stop()
	<-done
}
