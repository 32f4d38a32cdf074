// models/models.go
package models

import (
	"time"
)

// Challenge outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
)

// ChallengeRecord is the history entry written when a challenge ends.
type ChallengeRecord struct {
	RoomCode     string    `json:"room_code"`
	Challenger   string    `json:"challenger"`
	Challenged   string    `json:"challenged"`
	CardID       string    `json:"card_id"`
	CardText     string    `json:"card_text"`
	Outcome      string    `json:"outcome"`
	VotesFor     int       `json:"votes_for"`
	VotesAgainst int       `json:"votes_against"`
	IssuedAt     time.Time `json:"issued_at"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// PlayerStats aggregates a nickname's challenge history.
type PlayerStats struct {
	Nickname   string `json:"nickname"`
	Issued     int    `json:"issued"`
	Challenged int    `json:"challenged"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}
