package room

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/wfunc/callout/logger"
)

// Manager is the room store. Its lock covers only the code map and is never
// held while a room's own lock is taken.
type Manager struct {
	rooms    map[string]*Room
	mutex    sync.RWMutex
	settings Settings
	deps     *Deps
	newCode  func() string
	// pending counts history records still being written.
	pending sync.WaitGroup
}

func NewRoomManager(settings Settings, deps Deps) *Manager {
	return &Manager{
		rooms:    make(map[string]*Room),
		settings: settings,
		deps:     &deps,
		newCode:  GenerateRoomCode,
	}
}

// CreateRoom inserts an empty room under a code no live room uses.
func (m *Manager) CreateRoom() *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	code := m.newCode()
	for {
		if _, taken := m.rooms[code]; !taken {
			break
		}
		code = m.newCode()
	}

	room := newRoom(code, m.settings, m.deps, &m.pending)
	m.rooms[code] = room
	logger.Log.Infof("Room %s: created", code)
	return room
}

// GetRoom returns the live room for code, or ErrRoomNotFound.
func (m *Manager) GetRoom(code string) (*Room, error) {
	m.mutex.RLock()
	room, exists := m.rooms[NormalizeCode(code)]
	m.mutex.RUnlock()

	if !exists || room.isClosed() {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RemoveIfEmpty tears down and forgets the room if it has no players. It
// reports whether the room is gone.
func (m *Manager) RemoveIfEmpty(code string) bool {
	code = NormalizeCode(code)
	m.mutex.RLock()
	room, exists := m.rooms[code]
	m.mutex.RUnlock()
	if !exists {
		return true
	}
	if !room.closeIfEmpty() {
		return false
	}
	m.forget(code, room)
	return true
}

// RemoveRoom tears a room down regardless of who is in it.
func (m *Manager) RemoveRoom(code string) {
	code = NormalizeCode(code)
	m.mutex.RLock()
	room, exists := m.rooms[code]
	m.mutex.RUnlock()
	if !exists {
		return
	}
	room.forceClose()
	m.forget(code, room)
}

// SweepIdle removes rooms that have had no players for at least ttl, which
// covers rooms that were created and never joined.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	now := time.Now()
	removed := 0
	for _, room := range m.snapshot() {
		if room.closeIfIdle(ttl, now) {
			m.forget(room.code, room)
			removed++
		}
	}
	if removed > 0 {
		logger.Log.Infof("Swept %d idle rooms", removed)
	}
	return removed
}

// CloseAll tears down every room.
func (m *Manager) CloseAll() {
	for _, room := range m.snapshot() {
		room.forceClose()
		m.forget(room.code, room)
	}
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Codes lists live room codes in sorted order.
func (m *Manager) Codes() []string {
	m.mutex.RLock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	m.mutex.RUnlock()
	slices.Sort(codes)
	return codes
}

func (m *Manager) snapshot() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// forget deletes code only if it still maps to room.
func (m *Manager) forget(code string, room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.rooms[code] == room {
		delete(m.rooms, code)
	}
}

// WaitRecorded blocks until every resolved challenge handed to the Recorder
// has been written, or ctx is done.
func (m *Manager) WaitRecorded(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
