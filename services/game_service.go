// services/game_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/network"
	"github.com/wfunc/callout/room"
	"github.com/wfunc/callout/session"
)

var ErrNotInRoom = fmt.Errorf("%w: join a room first", room.ErrInvalidAction)

// VoteCounter is told about every vote that changed a tally.
type VoteCounter interface {
	IncVotesCast()
}

// GameService turns client requests into room operations. It owns the link
// between a connection and the (room, nickname) it plays as, so identity is
// always taken from the binding and never from the payload.
type GameService struct {
	rooms    *room.Manager
	sessions *session.Manager
	gateway  room.Broadcaster
	votes    VoteCounter
}

func NewGameService(rooms *room.Manager, sessions *session.Manager, gateway room.Broadcaster, votes VoteCounter) *GameService {
	return &GameService{
		rooms:    rooms,
		sessions: sessions,
		gateway:  gateway,
		votes:    votes,
	}
}

// CreateRoom opens an empty room and tells the caller its code. The caller is
// not seated; it joins like everyone else.
func (s *GameService) CreateRoom(connID string) (string, error) {
	r := s.rooms.CreateRoom()
	logger.Log.Infof("Session %s created room %s", connID, r.Code())
	if err := s.gateway.SendTo(connID, network.EventRoomCreated, room.RoomCreatedPayload{Code: r.Code()}); err != nil {
		logger.Log.Debugf("Session %s: roomCreated not delivered: %v", connID, err)
	}
	return r.Code(), nil
}

// JoinRoom seats the connection in the room under the requested nickname. A
// connection already playing elsewhere leaves that seat first.
func (s *GameService) JoinRoom(connID string, req network.JoinRoomRequest) error {
	r, err := s.rooms.GetRoom(req.RoomCode)
	if err != nil {
		return err
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		return fmt.Errorf("%w: nickname is required", room.ErrInvalidAction)
	}
	if code, nick, ok := s.sessions.Binding(connID); ok && (code != r.Code() || nick != nickname) {
		s.leave(connID, code, nick)
	}

	res, err := r.Join(connID, nickname)
	if err != nil {
		return err
	}
	if res.PreviousConn != "" {
		s.sessions.UnbindIf(res.PreviousConn, r.Code(), res.Nickname)
	}
	if !s.sessions.Bind(connID, r.Code(), res.Nickname) {
		// The connection closed while joining and its disconnect saw no binding.
		logger.Log.Infof("Session %s vanished while joining room %s", connID, r.Code())
		s.leaveRoom(r, connID)
	}
	return nil
}

// LeaveRoom gives up the connection's seat. Leaving while unseated is a no-op.
func (s *GameService) LeaveRoom(connID string) error {
	code, _, ok := s.sessions.Unbind(connID)
	if !ok {
		return nil
	}
	if r, err := s.rooms.GetRoom(code); err == nil {
		s.leaveRoom(r, connID)
	}
	return nil
}

func (s *GameService) StartGame(connID string, req network.StartGameRequest) error {
	r, nick, err := s.boundRoom(connID, req.RoomCode)
	if err != nil {
		return err
	}
	return r.StartGame(nick)
}

func (s *GameService) Challenge(connID string, req network.ChallengeRequest) error {
	r, nick, err := s.boundRoom(connID, req.RoomCode)
	if err != nil {
		return err
	}
	if req.Challenger != "" && req.Challenger != nick {
		return fmt.Errorf("%w: you are playing as %q", room.ErrInvalidAction, nick)
	}
	return r.Challenge(nick, strings.TrimSpace(req.Challenged), req.Card)
}

func (s *GameService) Vote(connID string, req network.VoteRequest) error {
	r, nick, err := s.boundRoom(connID, req.RoomCode)
	if err != nil {
		return err
	}
	if req.VoterID != "" && req.VoterID != nick {
		return fmt.Errorf("%w: you are playing as %q", room.ErrInvalidAction, nick)
	}
	if req.Verdict == nil {
		return fmt.Errorf("%w: vote has no verdict", room.ErrInvalidAction)
	}
	recorded, err := r.Vote(nick, *req.Verdict)
	if err != nil {
		return err
	}
	if recorded && s.votes != nil {
		s.votes.IncVotesCast()
	}
	return nil
}

// Disconnect forgets the connection and frees its seat, if any.
func (s *GameService) Disconnect(connID string) {
	sess, ok := s.sessions.Remove(connID)
	if !ok {
		return
	}
	code, nick, bound := sess.Binding()
	if !bound {
		return
	}
	logger.Log.Infof("Session %s (%s) disconnected from room %s", connID, nick, code)
	r, err := s.rooms.GetRoom(code)
	if err != nil {
		return
	}
	s.leaveRoom(r, connID)
}

// RoomSummary is a read-only view of a live room.
type RoomSummary struct {
	Code        string
	Players     []string
	Started     bool
	CurrentTurn string
	Phase       string
}

// ListRooms summarizes every live room in code order.
func (s *GameService) ListRooms() []RoomSummary {
	codes := s.rooms.Codes()
	out := make([]RoomSummary, 0, len(codes))
	for _, code := range codes {
		r, err := s.rooms.GetRoom(code)
		if err != nil {
			continue
		}
		snap := r.Snapshot()
		out = append(out, RoomSummary{
			Code:        snap.Code,
			Players:     snap.Players,
			Started:     snap.Started,
			CurrentTurn: snap.CurrentTurn,
			Phase:       snap.Phase,
		})
	}
	return out
}

// boundRoom resolves the caller's binding. A payload room code, when given,
// must name the bound room.
func (s *GameService) boundRoom(connID, roomCode string) (*room.Room, string, error) {
	code, nick, ok := s.sessions.Binding(connID)
	if !ok {
		return nil, "", ErrNotInRoom
	}
	if roomCode != "" && room.NormalizeCode(roomCode) != code {
		return nil, "", fmt.Errorf("%w: you are in room %s", room.ErrInvalidAction, code)
	}
	r, err := s.rooms.GetRoom(code)
	if err != nil {
		s.sessions.UnbindIf(connID, code, nick)
		return nil, "", err
	}
	return r, nick, nil
}

func (s *GameService) leave(connID, code, nick string) {
	s.sessions.UnbindIf(connID, code, nick)
	r, err := s.rooms.GetRoom(code)
	if err != nil {
		return
	}
	s.leaveRoom(r, connID)
}

func (s *GameService) leaveRoom(r *room.Room, connID string) {
	if _, empty := r.Leave(connID); empty {
		s.rooms.RemoveIfEmpty(r.Code())
	}
}
