package services

import (
	"encoding/json"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/callout/broadcast"
	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/network"
	"github.com/wfunc/callout/persistence"
	"github.com/wfunc/callout/room"
	"github.com/wfunc/callout/session"
	"github.com/wfunc/callout/timer"
)

// clientConn decodes everything the server sends to one client.
type clientConn struct {
	mu     sync.Mutex
	events []received
	delay  time.Duration
}

type received struct {
	name string
	data []byte
}

func (c *clientConn) Send(msgID uint16, data []byte) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	name, _ := network.EventName(msgID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, received{name: name, data: data})
	return nil
}
func (c *clientConn) Close() error                         { return nil }
func (c *clientConn) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *clientConn) SetHeartbeat(time.Duration)           {}
func (c *clientConn) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *clientConn) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.name == name {
			n++
		}
	}
	return n
}

// last decodes the most recent event called name into v.
func (c *clientConn) last(t *testing.T, name string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].name == name {
			require.NoError(t, json.Unmarshal(c.events[i].data, v))
			return
		}
	}
	t.Fatalf("no %s event received", name)
}

// manualScheduler holds timers until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]func()
}

func (s *manualScheduler) AddTimer(_, _ time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks == nil {
		s.tasks = make(map[int64]func())
	}
	s.nextID++
	s.tasks[s.nextID] = callback
	return s.nextID
}

func (s *manualScheduler) RemoveTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	ids := make([]int64, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		tasks[id]()
	}
	return len(tasks)
}

type voteCounter struct {
	mu sync.Mutex
	n  int
}

func (v *voteCounter) IncVotesCast() {
	v.mu.Lock()
	v.n++
	v.mu.Unlock()
}

func (v *voteCounter) value() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.n
}

type harness struct {
	svc       *GameService
	rooms     *room.Manager
	sessions  *session.Manager
	scheduler *manualScheduler
	store     *persistence.MemoryStore
	votes     *voteCounter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	scheduler := &manualScheduler{}
	h := buildHarness(room.DefaultSettings(), scheduler)
	h.scheduler = scheduler
	return h
}

// newLiveHarness runs rooms on a real timer.TimerManager.
func newLiveHarness(t *testing.T, settings room.Settings) *harness {
	t.Helper()
	timers := timer.NewTimerManager()
	t.Cleanup(timers.Stop)
	return buildHarness(settings, timers)
}

func buildHarness(settings room.Settings, scheduler room.Scheduler) *harness {
	h := &harness{
		sessions: session.NewManager(),
		store:    persistence.NewMemoryStore(),
		votes:    &voteCounter{},
	}
	gateway := broadcast.NewRoomBroadcaster(nil, h.sessions)
	h.rooms = room.NewRoomManager(settings, room.Deps{
		Catalog:     cards.Default(),
		Broadcaster: gateway,
		Scheduler:   scheduler,
		Recorder:    h.store,
	})
	gateway.SetRoomManager(h.rooms)
	h.svc = NewGameService(h.rooms, h.sessions, gateway, h.votes)
	return h
}

func (h *harness) connect(id string) *clientConn {
	c := &clientConn{}
	h.sessions.Add(session.NewSession(id, c))
	return c
}

func (h *harness) join(t *testing.T, connID, code, nickname string) {
	t.Helper()
	require.NoError(t, h.svc.JoinRoom(connID, network.JoinRoomRequest{RoomCode: code, Nickname: nickname}))
}

func (h *harness) players(t *testing.T, code string) []string {
	t.Helper()
	r, err := h.rooms.GetRoom(code)
	require.NoError(t, err)
	return r.Snapshot().Players
}
