package network

import (
	"encoding/json"
	"fmt"
)

// Inbound message types.
const (
	MsgTypeHeartbeat       = 1
	MsgTypeJoinRoom        = 101
	MsgTypeLeaveRoom       = 102
	MsgTypeCreateRoom      = 103
	MsgTypeStartGame       = 104
	MsgTypeChallengePlayer = 201
	MsgTypeSubmitVote      = 202
)

// Outbound message types.
const (
	MsgTypeRoomCreated      = 301
	MsgTypeJoinedRoom       = 302
	MsgTypeUpdatePlayerList = 303
	MsgTypeStartTurn        = 304
	MsgTypeChallenge        = 305
	MsgTypeVotingOpen       = 306
	MsgTypeVoteResult       = 307
	MsgTypeError            = 500
)

// Event names as seen by the game core.
const (
	EventHeartbeat        = "heartbeat"
	EventJoinRoom         = "joinRoom"
	EventLeaveRoom        = "leaveRoom"
	EventCreateRoom       = "createRoom"
	EventStartGame        = "startGame"
	EventChallengePlayer  = "challengePlayer"
	EventSubmitVote       = "submitVote"
	EventRoomCreated      = "roomCreated"
	EventJoinedRoom       = "joinedRoom"
	EventUpdatePlayerList = "updatePlayerList"
	EventStartTurn        = "startTurn"
	EventChallenge        = "challenge"
	EventVotingOpen       = "votingOpen"
	EventVoteResult       = "voteResult"
	EventError            = "error"
)

var eventIDs = map[string]uint16{
	EventHeartbeat:        MsgTypeHeartbeat,
	EventJoinRoom:         MsgTypeJoinRoom,
	EventLeaveRoom:        MsgTypeLeaveRoom,
	EventCreateRoom:       MsgTypeCreateRoom,
	EventStartGame:        MsgTypeStartGame,
	EventChallengePlayer:  MsgTypeChallengePlayer,
	EventSubmitVote:       MsgTypeSubmitVote,
	EventRoomCreated:      MsgTypeRoomCreated,
	EventJoinedRoom:       MsgTypeJoinedRoom,
	EventUpdatePlayerList: MsgTypeUpdatePlayerList,
	EventStartTurn:        MsgTypeStartTurn,
	EventChallenge:        MsgTypeChallenge,
	EventVotingOpen:       MsgTypeVotingOpen,
	EventVoteResult:       MsgTypeVoteResult,
	EventError:            MsgTypeError,
}

var eventNames = func() map[uint16]string {
	names := make(map[uint16]string, len(eventIDs))
	for name, id := range eventIDs {
		names[id] = name
	}
	return names
}()

// MsgID returns the wire id of a named event.
func MsgID(event string) (uint16, bool) {
	id, ok := eventIDs[event]
	return id, ok
}

// EventName returns the event name of a wire id.
func EventName(msgID uint16) (string, bool) {
	name, ok := eventNames[msgID]
	return name, ok
}

// Encode turns a named event and its payload into a wire id and JSON body.
func Encode(event string, payload any) (uint16, []byte, error) {
	id, ok := MsgID(event)
	if !ok {
		return 0, nil, fmt.Errorf("unknown event %q", event)
	}
	if payload == nil {
		return id, []byte("{}"), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return id, data, nil
}

// Inbound payloads.

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

type StartGameRequest struct {
	RoomCode string `json:"roomCode"`
}

// UnmarshalJSON accepts both {"roomCode": "..."} and a bare "..." string, the
// latter being what the browser client emits.
func (r *StartGameRequest) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		r.RoomCode = code
		return nil
	}
	type plain StartGameRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = StartGameRequest(p)
	return nil
}

type ChallengeRequest struct {
	RoomCode   string `json:"roomCode"`
	Challenger string `json:"challenger"`
	Challenged string `json:"challenged"`
	Card       string `json:"card"`
}

// VoteRequest carries a ballot. Verdict is nil when the client left it out.
type VoteRequest struct {
	RoomCode string `json:"roomCode"`
	VoterID  string `json:"voterId"`
	Verdict  *bool  `json:"verdict"`
}

// Ballot returns a verdict for a VoteRequest.
func Ballot(completed bool) *bool {
	return &completed
}
