package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/tictactoe/models"
	"github.com/wfunc/tictactoe/monitor"
	"github.com/wfunc/tictactoe/persistence"
	"github.com/wfunc/tictactoe/room"
)

func finished(code, winner string) room.Match {
	now := time.Now()
	return room.Match{
		RoomCode:   code,
		PlayerX:    "alice",
		PlayerO:    "bob",
		Winner:     winner,
		Line:       []int{0, 1, 2},
		Moves:      5,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestMatchServiceRecordsAsync(t *testing.T) {
	db := persistence.NewMemory()
	mon := monitor.NewMonitor("test")
	svc := NewMatchService(db, mon, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	svc.RecordMatch(finished("ROOM0001", models.WinnerX))
	svc.RecordMatch(finished("ROOM0002", models.WinnerDraw))

	require.Eventually(t, func() bool {
		recent, err := svc.RecentMatches(context.Background(), "alice", 10)
		return err == nil && len(recent) == 2
	}, time.Second, 10*time.Millisecond)

	stats, err := svc.GetPlayerStats(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Games)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.Draws)

	assert.Equal(t, float64(1), testutil.ToFloat64(mon.Metrics().GamesFinished.WithLabelValues(models.WinnerX)))

	cancel()
	<-done
}

func TestMatchServiceDrainsOnShutdown(t *testing.T) {
	db := persistence.NewMemory()
	svc := NewMatchService(db, nil, 4)

	svc.RecordMatch(finished("ROOM0001", models.WinnerO))
	svc.RecordMatch(finished("ROOM0002", models.WinnerO))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Run(ctx)

	recent, err := db.RecentMatches(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMatchServiceDropsWhenFull(t *testing.T) {
	svc := NewMatchService(persistence.NewMemory(), nil, 1)

	svc.RecordMatch(finished("ROOM0001", models.WinnerX))
	svc.RecordMatch(finished("ROOM0002", models.WinnerX))

	assert.Len(t, svc.queue, 1)
}

func TestToRecordCopiesLine(t *testing.T) {
	m := finished("ROOM0001", models.WinnerX)
	record := ToRecord(m)
	m.Line[0] = 8

	assert.Equal(t, []int{0, 1, 2}, record.Line)
	assert.Equal(t, "alice", record.PlayerX)
	assert.Equal(t, 5, record.Moves)
}
