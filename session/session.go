// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/callout/network"
)

// Session is one live client connection and its (room, nickname) binding.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time
	roomCode  string
	nickname  string
	mutex     sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
}

// Send encodes a named event and writes it to the connection.
func (s *Session) Send(event string, payload any) error {
	msgID, data, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Binding returns the room code and nickname this session is bound to.
func (s *Session) Binding() (roomCode, nickname string, ok bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomCode, s.nickname, s.roomCode != ""
}

func (s *Session) bind(roomCode, nickname string) {
	s.mutex.Lock()
	s.roomCode = roomCode
	s.nickname = nickname
	s.mutex.Unlock()
}

func (s *Session) unbindIf(roomCode, nickname string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomCode == "" || s.roomCode != roomCode || s.nickname != nickname {
		return false
	}
	s.roomCode = ""
	s.nickname = ""
	return true
}

// Manager is the connection registry: every live session keyed by id, each
// bound to at most one (room, nickname).
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Remove drops a session and returns it, so the caller can still read its
// last binding.
func (m *Manager) Remove(sessionID string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, exists := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return session, exists
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// All returns a copy of the live sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Bind records that sessionID now plays as nickname in roomCode. It reports
// false if the session is no longer registered.
func (m *Manager) Bind(sessionID, roomCode, nickname string) bool {
	s, ok := m.Get(sessionID)
	if !ok {
		return false
	}
	s.bind(roomCode, nickname)
	return true
}

// Unbind clears the binding of sessionID and returns what it was.
func (m *Manager) Unbind(sessionID string) (roomCode, nickname string, ok bool) {
	s, exists := m.Get(sessionID)
	if !exists {
		return "", "", false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	roomCode, nickname = s.roomCode, s.nickname
	s.roomCode, s.nickname = "", ""
	return roomCode, nickname, roomCode != ""
}

// UnbindIf clears the binding of sessionID only if it still points at
// (roomCode, nickname). A session that has since moved elsewhere is untouched.
func (m *Manager) UnbindIf(sessionID, roomCode, nickname string) bool {
	s, ok := m.Get(sessionID)
	if !ok {
		return false
	}
	return s.unbindIf(roomCode, nickname)
}

// Binding looks up the (room, nickname) a session is bound to.
func (m *Manager) Binding(sessionID string) (roomCode, nickname string, ok bool) {
	s, exists := m.Get(sessionID)
	if !exists {
		return "", "", false
	}
	return s.Binding()
}
