// services/match_service.go
package services

import (
	"context"
	"time"

	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/models"
	"github.com/wfunc/tictactoe/monitor"
	"github.com/wfunc/tictactoe/persistence"
	"github.com/wfunc/tictactoe/room"
)

const (
	DefaultQueueSize = 256
	saveTimeout      = 5 * time.Second
)

// MatchService records finished rounds and answers history queries.
// RecordMatch is called with a room lock held, so writes are handed to Run
// through a buffered queue.
type MatchService struct {
	db      persistence.Database
	monitor *monitor.Monitor
	queue   chan room.Match
}

func NewMatchService(db persistence.Database, mon *monitor.Monitor, queueSize int) *MatchService {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &MatchService{
		db:      db,
		monitor: mon,
		queue:   make(chan room.Match, queueSize),
	}
}

// RecordMatch implements room.MatchRecorder. A full queue drops the match.
func (s *MatchService) RecordMatch(m room.Match) {
	select {
	case s.queue <- m:
	default:
		logger.Log.Warnw("match queue full, dropping record", "room", m.RoomCode, "winner", m.Winner)
	}
}

// Run saves queued matches until ctx is cancelled, then drains what is left.
func (s *MatchService) Run(ctx context.Context) {
	for {
		select {
		case m := <-s.queue:
			s.save(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-s.queue:
					s.save(m)
				default:
					return
				}
			}
		}
	}
}

func (s *MatchService) save(m room.Match) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	record := ToRecord(m)
	if err := s.db.SaveMatch(ctx, record); err != nil {
		logger.Log.Errorw("failed to save match", "room", m.RoomCode, "error", err)
		return
	}
	s.monitor.IncGamesFinished(m.Winner)
	logger.Log.Debugw("match saved", "id", record.ID, "room", m.RoomCode, "winner", m.Winner)
}

func (s *MatchService) GetPlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	return s.db.GetPlayerStats(ctx, username)
}

func (s *MatchService) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	return s.db.RecentMatches(ctx, username, limit)
}

// ToRecord converts a finished round into its stored form.
func ToRecord(m room.Match) *models.MatchRecord {
	line := make([]int, len(m.Line))
	copy(line, m.Line)
	return &models.MatchRecord{
		RoomCode:   m.RoomCode,
		PlayerX:    m.PlayerX,
		PlayerO:    m.PlayerO,
		Winner:     m.Winner,
		Line:       line,
		Moves:      m.Moves,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}
