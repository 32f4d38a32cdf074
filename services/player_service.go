// services/player_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/persistence"
)

var ErrNicknameRequired = errors.New("nickname is required")

type PlayerService struct {
	db persistence.Database
}

func NewPlayerService(db persistence.Database) *PlayerService {
	return &PlayerService{db: db}
}

// GetPlayerStats 获取玩家的挑战统计。没有任何记录的玩家返回全零统计。
func (s *PlayerService) GetPlayerStats(ctx context.Context, nickname string) (*models.PlayerStats, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrNicknameRequired
	}

	stats, err := s.db.GetPlayerStats(ctx, nickname)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return &models.PlayerStats{Nickname: nickname}, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}
