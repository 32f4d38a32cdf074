// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/callout/models"
)

// Database 挑战历史存储接口
type Database interface {
	RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error
	GetPlayerStats(ctx context.Context, nickname string) (*models.PlayerStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

// statsRow is the shape of the aggregate query shared by both SQL stores.
type statsRow struct {
	Issued     int
	Challenged int
	Completed  int
	Failed     int
}

// statsQuery uses a named placeholder for gorm; the lib/pq store rewrites it
// to a positional one.
const statsQuery = `
    SELECT
        COALESCE(SUM(CASE WHEN challenger = @nickname THEN 1 ELSE 0 END), 0) AS issued,
        COALESCE(SUM(CASE WHEN challenged = @nickname THEN 1 ELSE 0 END), 0) AS challenged,
        COALESCE(SUM(CASE WHEN challenged = @nickname AND outcome = 'success' THEN 1 ELSE 0 END), 0) AS completed,
        COALESCE(SUM(CASE WHEN challenged = @nickname AND outcome = 'failure' THEN 1 ELSE 0 END), 0) AS failed
    FROM challenge_records
    WHERE challenger = @nickname OR challenged = @nickname`

func (r statsRow) toStats(nickname string) (*models.PlayerStats, error) {
	if r.Issued == 0 && r.Challenged == 0 {
		return nil, ErrRecordNotFound
	}
	return &models.PlayerStats{
		Nickname:   nickname,
		Issued:     r.Issued,
		Challenged: r.Challenged,
		Completed:  r.Completed,
		Failed:     r.Failed,
	}, nil
}
