// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	"github.com/wfunc/callout/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，与 GORM 迁移出的表兼容
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS challenge_records (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            room_code TEXT NOT NULL,
            challenger TEXT NOT NULL,
            challenged TEXT NOT NULL,
            card_id TEXT NOT NULL,
            card_text TEXT NOT NULL,
            outcome TEXT NOT NULL,
            votes_for BIGINT DEFAULT 0,
            votes_against BIGINT DEFAULT 0,
            issued_at TIMESTAMPTZ NOT NULL,
            resolved_at TIMESTAMPTZ NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_challenge_records_challenger ON challenge_records(challenger);
        CREATE INDEX IF NOT EXISTS idx_challenge_records_challenged ON challenge_records(challenged);
        CREATE INDEX IF NOT EXISTS idx_challenge_records_room_code ON challenge_records(room_code);
    `)
	return err
}

// RecordChallenge 保存一条挑战记录
func (p *PostgreSQL) RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error {
	query := `
        INSERT INTO challenge_records
            (room_code, challenger, challenged, card_id, card_text, outcome,
             votes_for, votes_against, issued_at, resolved_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := p.db.ExecContext(ctx, query,
		rec.RoomCode, rec.Challenger, rec.Challenged, rec.CardID, rec.CardText, rec.Outcome,
		rec.VotesFor, rec.VotesAgainst, rec.IssuedAt, rec.ResolvedAt)
	return err
}

var positionalStatsQuery = strings.ReplaceAll(statsQuery, "@nickname", "$1")

// GetPlayerStats 统计玩家的挑战历史
func (p *PostgreSQL) GetPlayerStats(ctx context.Context, nickname string) (*models.PlayerStats, error) {
	var row statsRow
	err := p.db.QueryRowContext(ctx, positionalStatsQuery, nickname).
		Scan(&row.Issued, &row.Challenged, &row.Completed, &row.Failed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.toStats(nickname)
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
