package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/tictactoe/models"
)

// Memory keeps match history for the lifetime of the process.
type Memory struct {
	records []models.MatchRecord
	nextID  uint
	mutex   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) SaveMatch(_ context.Context, record *models.MatchRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record.ID = m.nextID
	m.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records = append(m.records, *record)
	return nil
}

// RecentMatches returns the user's matches, newest first.
func (m *Memory) RecentMatches(_ context.Context, username string, limit int) ([]models.MatchRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []models.MatchRecord
	for i := len(m.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.records[i].Involves(username) {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *Memory) GetPlayerStats(_ context.Context, username string) (*models.PlayerStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := &models.PlayerStats{Username: username}
	for i := range m.records {
		stats.Tally(&m.records[i])
	}
	return stats, nil
}

func (m *Memory) Close() error {
	return nil
}
