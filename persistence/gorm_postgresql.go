// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/tictactoe/models"
)

// GormPostgreSQL stores match history through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.MatchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate match_records: %w", err)
	}

	return &GormPostgreSQL{db: db}, nil
}

func (p *GormPostgreSQL) SaveMatch(ctx context.Context, record *models.MatchRecord) error {
	return p.db.WithContext(ctx).Create(record).Error
}

func (p *GormPostgreSQL) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	var records []models.MatchRecord
	q := p.db.WithContext(ctx).
		Where("player_x = ? OR player_o = ?", username, username).
		Order("finished_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (p *GormPostgreSQL) GetPlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{}
	err := p.db.WithContext(ctx).
		Raw(fmt.Sprintf(statsQuery, "@user"), sql.Named("user", username)).
		Scan(stats).Error
	if err != nil {
		return nil, err
	}
	stats.Username = username
	return stats, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
