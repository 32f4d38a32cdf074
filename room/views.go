package room

import (
	"maps"

	"github.com/wfunc/callout/cards"
)

// Payloads are built under the room lock and serialized after it is released,
// so every one of them is a private copy.

type PlayerView struct {
	Nickname  string `json:"nickname"`
	CardsLeft int    `json:"cardsLeft"`
}

type RoomCreatedPayload struct {
	Code string `json:"code"`
}

type JoinedRoomPayload struct {
	Code    string        `json:"code"`
	Players []PlayerView  `json:"players"`
	Hand    []*cards.Card `json:"hand"`
}

type PlayerListPayload struct {
	Players []PlayerView   `json:"players"`
	Scores  map[string]int `json:"scores"`
}

type StartTurnPayload struct {
	CurrentTurn string `json:"currentTurn"`
}

type ChallengePayload struct {
	Challenger string      `json:"challenger"`
	Challenged string      `json:"challenged"`
	Card       *cards.Card `json:"card"`
}

type VotingOpenPayload struct {
	Challenger string   `json:"challenger"`
	Challenged string   `json:"challenged"`
	Voters     []string `json:"voters"`
	Seconds    int      `json:"seconds"`
}

type VoteResultPayload struct {
	Result     string         `json:"result"`
	Challenger string         `json:"challenger"`
	Challenged string         `json:"challenged"`
	Card       *cards.Card    `json:"card"`
	Yes        int            `json:"yes"`
	No         int            `json:"no"`
	Scores     map[string]int `json:"scores"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Snapshot is a read-only copy of a room's state.
type Snapshot struct {
	Code        string
	Players     []string
	Hands       map[string][]*cards.Card
	Started     bool
	CurrentTurn string
	Scores      map[string]int
	Phase       string
	Votes       map[string]bool
}

func (r *Room) playerViewsLocked() []PlayerView {
	views := make([]PlayerView, len(r.players))
	for i, p := range r.players {
		views[i] = PlayerView{Nickname: p.Nickname, CardsLeft: len(p.Hand)}
	}
	return views
}

func (r *Room) scoresLocked() map[string]int {
	return maps.Clone(r.scores)
}

func (r *Room) playerListLocked() PlayerListPayload {
	return PlayerListPayload{Players: r.playerViewsLocked(), Scores: r.scoresLocked()}
}
