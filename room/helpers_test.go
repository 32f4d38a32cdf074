package room

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/callout/cards"
)

type sentEvent struct {
	roomCode string // set for broadcasts
	connID   string // set for direct sends
	event    string
	payload  any
}

// recordingBroadcaster collects events instead of sending them.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) BroadcastToRoom(roomCode, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{roomCode: roomCode, event: event, payload: payload})
	return nil
}

func (b *recordingBroadcaster) SendTo(connID, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{connID: connID, event: event, payload: payload})
	return nil
}

func (b *recordingBroadcaster) all() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sentEvent, len(b.events))
	copy(out, b.events)
	return out
}

// broadcasts returns the payloads of room-wide events with the given name.
func (b *recordingBroadcaster) broadcasts(event string) []any {
	var out []any
	for _, e := range b.all() {
		if e.connID == "" && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (b *recordingBroadcaster) sentTo(connID, event string) []any {
	var out []any
	for _, e := range b.all() {
		if e.connID == connID && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (b *recordingBroadcaster) lastBroadcast(t *testing.T, event string) any {
	t.Helper()
	all := b.broadcasts(event)
	require.NotEmpty(t, all, "no %s broadcast", event)
	return all[len(all)-1]
}

func (b *recordingBroadcaster) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// manualScheduler holds timers until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]scheduledTask
}

type scheduledTask struct {
	delay    time.Duration
	callback func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[int64]scheduledTask)}
}

func (s *manualScheduler) AddTimer(delay, interval time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.tasks[s.nextID] = scheduledTask{delay: delay, callback: callback}
	return s.nextID
}

func (s *manualScheduler) RemoveTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *manualScheduler) pending() []scheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]scheduledTask, len(ids))
	for i, id := range ids {
		out[i] = s.tasks[id]
	}
	return out
}

// fireAll runs every pending task once, outside the scheduler lock.
func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[int64]scheduledTask)
	s.mu.Unlock()

	ids := make([]int64, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		tasks[id].callback()
	}
	return len(tasks)
}

type fixture struct {
	manager   *Manager
	bcast     *recordingBroadcaster
	scheduler *manualScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bcast:     &recordingBroadcaster{},
		scheduler: newManualScheduler(),
	}
	settings := DefaultSettings()
	f.manager = NewRoomManager(settings, Deps{
		Catalog:     cards.Default(),
		Broadcaster: f.bcast,
		Scheduler:   f.scheduler,
	})
	return f
}

// newRoomWith creates a room and seats each nickname on connection "conn-<nickname>".
func (f *fixture) newRoomWith(t *testing.T, nicknames ...string) *Room {
	t.Helper()
	r := f.manager.CreateRoom()
	for _, n := range nicknames {
		_, err := r.Join("conn-"+n, n)
		require.NoError(t, err)
	}
	return r
}

// startWithTurn starts the game and then pins the turn on nickname.
func startWithTurn(t *testing.T, r *Room, nickname string) {
	t.Helper()
	require.NoError(t, r.StartGame(nickname))
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.players {
		if p.Nickname == nickname {
			r.turnIndex = i
			return
		}
	}
	t.Fatalf("%s is not seated", nickname)
}

func firstCard(t *testing.T, r *Room, nickname string) *cards.Card {
	t.Helper()
	hand := r.Snapshot().Hands[nickname]
	require.NotEmpty(t, hand)
	return hand[0]
}
