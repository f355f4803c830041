package rpc

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/tictactoe/models"
	"github.com/wfunc/tictactoe/room"
	"github.com/wfunc/tictactoe/session"
)

type stubStats struct{}

func (stubStats) GetPlayerStats(_ context.Context, username string) (*models.PlayerStats, error) {
	return &models.PlayerStats{Username: username, Games: 4, Wins: 2, Losses: 1, Draws: 1}, nil
}

func startLobby(t *testing.T) (*rpc.Client, *room.Manager, *session.Manager) {
	t.Helper()

	rooms := room.NewRoomManager()
	sessions := session.NewManager()
	srv, err := NewServer("127.0.0.1:0", NewLobbyService(rooms, sessions, stubStats{}))
	require.NoError(t, err)
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, rooms, sessions
}

func TestLobbyStats(t *testing.T) {
	client, rooms, sessions := startLobby(t)

	s := session.NewSession("s1", "alice", nil)
	sessions.Add(s)
	_, err := rooms.CreateRoom(s)
	require.NoError(t, err)

	var reply StatsReply
	require.NoError(t, client.Call(ServiceName+".Stats", &StatsArgs{}, &reply))
	assert.Equal(t, StatsReply{Rooms: 1, Waiting: 1, Players: 1, Connections: 1}, reply)
}

func TestLobbyPlayerStats(t *testing.T) {
	client, _, _ := startLobby(t)

	var reply PlayerStatsReply
	require.NoError(t, client.Call(ServiceName+".PlayerStats", &PlayerStatsArgs{Username: "alice"}, &reply))
	assert.Equal(t, "alice", reply.Stats.Username)
	assert.Equal(t, 2, reply.Stats.Wins)

	err := client.Call(ServiceName+".PlayerStats", &PlayerStatsArgs{}, &reply)
	assert.Error(t, err)
}

func TestHealthServer(t *testing.T) {
	h, err := NewHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	go h.Start()
	defer h.Stop()

	conn, err := grpc.NewClient(h.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	h.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(HealthService))
}
