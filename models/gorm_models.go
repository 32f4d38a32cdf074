// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormChallengeRecord is the table form of ChallengeRecord.
type GormChallengeRecord struct {
	gorm.Model
	RoomCode     string    `gorm:"index;not null"`
	Challenger   string    `gorm:"index;not null"`
	Challenged   string    `gorm:"index;not null"`
	CardID       string    `gorm:"not null"`
	CardText     string    `gorm:"not null"`
	Outcome      string    `gorm:"index;not null"`
	VotesFor     int       `gorm:"default:0"`
	VotesAgainst int       `gorm:"default:0"`
	IssuedAt     time.Time `gorm:"not null"`
	ResolvedAt   time.Time `gorm:"not null"`
}

func (GormChallengeRecord) TableName() string {
	return "challenge_records"
}

func NewGormChallengeRecord(rec ChallengeRecord) *GormChallengeRecord {
	return &GormChallengeRecord{
		RoomCode:     rec.RoomCode,
		Challenger:   rec.Challenger,
		Challenged:   rec.Challenged,
		CardID:       rec.CardID,
		CardText:     rec.CardText,
		Outcome:      rec.Outcome,
		VotesFor:     rec.VotesFor,
		VotesAgainst: rec.VotesAgainst,
		IssuedAt:     rec.IssuedAt,
		ResolvedAt:   rec.ResolvedAt,
	}
}
