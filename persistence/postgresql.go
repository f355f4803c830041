// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/tictactoe/models"
)

// PostgreSQL stores match history with plain database/sql on lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables creates the same layout GORM migrates to.
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id BIGSERIAL PRIMARY KEY,
            room_code VARCHAR(16) NOT NULL,
            player_x VARCHAR(64) NOT NULL,
            player_o VARCHAR(64) NOT NULL,
            winner VARCHAR(8) NOT NULL,
            line JSONB,
            moves BIGINT NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ,
            finished_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("create match_records: %w", err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_match_records_room_code ON match_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_match_records_player_x ON match_records(player_x);
        CREATE INDEX IF NOT EXISTS idx_match_records_player_o ON match_records(player_o);
    `)
	return err
}

func (p *PostgreSQL) SaveMatch(ctx context.Context, record *models.MatchRecord) error {
	line, err := json.Marshal(record.Line)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO match_records (room_code, player_x, player_o, winner, line, moves, started_at, finished_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return p.db.QueryRowContext(ctx, query,
		record.RoomCode, record.PlayerX, record.PlayerO, record.Winner, line,
		record.Moves, record.StartedAt, record.FinishedAt, record.CreatedAt,
	).Scan(&record.ID)
}

func (p *PostgreSQL) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	query := `
        SELECT id, room_code, player_x, player_o, winner, line, moves, started_at, finished_at, created_at
        FROM match_records
        WHERE player_x = $1 OR player_o = $1
        ORDER BY finished_at DESC, id DESC
    `
	args := []any{username}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		var (
			r    models.MatchRecord
			line []byte
		)
		if err := rows.Scan(&r.ID, &r.RoomCode, &r.PlayerX, &r.PlayerO, &r.Winner, &line,
			&r.Moves, &r.StartedAt, &r.FinishedAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(line) > 0 {
			if err := json.Unmarshal(line, &r.Line); err != nil {
				return nil, err
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) GetPlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{Username: username}
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(statsQuery, "$1"), username).
		Scan(&stats.Games, &stats.Wins, &stats.Losses, &stats.Draws)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
