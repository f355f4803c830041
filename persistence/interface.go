// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/tictactoe/config"
	"github.com/wfunc/tictactoe/models"
)

// Database stores match history. Rooms themselves are never persisted.
type Database interface {
	SaveMatch(ctx context.Context, record *models.MatchRecord) error
	RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error)
	GetPlayerStats(ctx context.Context, username string) (*models.PlayerStats, error)
	Close() error
}

// Open returns the database selected by cfg. A disabled database is served
// from memory.
func Open(cfg config.DatabaseConfig) (Database, error) {
	if !cfg.Enabled {
		return NewMemory(), nil
	}

	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "pq":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// statsQuery tallies one user's matches. The placeholder style is filled in
// per driver.
const statsQuery = `
        SELECT
            COUNT(*) AS games,
            COALESCE(SUM(CASE WHEN (player_x = %[1]s AND winner = 'X') OR (player_o = %[1]s AND winner = 'O') THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN (player_x = %[1]s AND winner = 'O') OR (player_o = %[1]s AND winner = 'X') THEN 1 ELSE 0 END), 0) AS losses,
            COALESCE(SUM(CASE WHEN winner = 'draw' THEN 1 ELSE 0 END), 0) AS draws
        FROM match_records
        WHERE player_x = %[1]s OR player_o = %[1]s`
