// models/models.go
package models

import (
	"time"
)

// Outcomes stored in MatchRecord.Winner.
const (
	WinnerX    = "X"
	WinnerO    = "O"
	WinnerDraw = "draw"
)

// MatchRecord is one finished round.
type MatchRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomCode   string    `gorm:"size:16;index;not null" json:"room_code"`
	PlayerX    string    `gorm:"size:64;index;not null" json:"player_x"`
	PlayerO    string    `gorm:"size:64;index;not null" json:"player_o"`
	Winner     string    `gorm:"size:8;not null" json:"winner"`
	Line       []int     `gorm:"serializer:json;type:jsonb" json:"line"`
	Moves      int       `gorm:"not null;default:0" json:"moves"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Involves reports whether username played in the match.
func (m *MatchRecord) Involves(username string) bool {
	return m.PlayerX == username || m.PlayerO == username
}

// PlayerStats is the win/loss record of one user.
type PlayerStats struct {
	Username string `json:"username"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

// Tally adds one match to the stats of s.Username. Matches the user did not
// play are ignored.
func (s *PlayerStats) Tally(m *MatchRecord) {
	if !m.Involves(s.Username) {
		return
	}
	s.Games++

	mine := WinnerX
	if m.PlayerO == s.Username {
		mine = WinnerO
	}
	switch m.Winner {
	case WinnerDraw:
		s.Draws++
	case mine:
		s.Wins++
	default:
		s.Losses++
	}
}
