// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/room"
	"github.com/wfunc/callout/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload any) error
	SendTo(connID, event string, payload any) error
	BroadcastToAll(event string, payload any) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// SetRoomManager attaches the room store once it exists; rooms need the
// broadcaster at construction time. Call it before serving traffic.
func (b *RoomBroadcaster) SetRoomManager(roomManager *room.Manager) {
	b.roomManager = roomManager
}

// BroadcastToRoom sends the event to every connection seated in the room.
// A failed send to one connection does not stop the others.
func (b *RoomBroadcaster) BroadcastToRoom(roomCode, event string, payload any) error {
	r, err := b.roomManager.GetRoom(roomCode)
	if err != nil {
		return err
	}

	var errs []error
	for _, connID := range r.ConnectionIDs() {
		if err := b.SendTo(connID, event, payload); err != nil {
			// 发送失败的连接由读循环负责清理
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *RoomBroadcaster) SendTo(connID, event string, payload any) error {
	s, exists := b.sessionManager.Get(connID)
	if !exists {
		return ErrSessionNotFound
	}
	if err := s.Send(event, payload); err != nil {
		logger.Log.Debugf("Send %s to %s failed: %v", event, connID, err)
		return err
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToAll(event string, payload any) error {
	var errs []error
	for _, s := range b.sessionManager.All() {
		if err := s.Send(event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
