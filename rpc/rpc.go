package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/models"
	"github.com/wfunc/tictactoe/room"
	"github.com/wfunc/tictactoe/session"
)

// ServiceName is the name LobbyService is registered under.
const ServiceName = "LobbyService"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	server   *rpc.Server
}

// NewServer listens on addr and registers service under ServiceName.
func NewServer(addr string, service *LobbyService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		server:   srv,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start accepts connections until Stop is called.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsReader is the part of the match service the lobby reads from.
type StatsReader interface {
	GetPlayerStats(ctx context.Context, username string) (*models.PlayerStats, error)
}

// LobbyService exposes read-only server state to operators.
type LobbyService struct {
	rooms    *room.Manager
	sessions *session.Manager
	matches  StatsReader
}

func NewLobbyService(rooms *room.Manager, sessions *session.Manager, matches StatsReader) *LobbyService {
	return &LobbyService{rooms: rooms, sessions: sessions, matches: matches}
}

type StatsArgs struct{}

type StatsReply struct {
	Rooms       int
	Waiting     int
	Playing     int
	Finished    int
	Players     int
	Connections int
}

// Stats follows the net/rpc method shape: exported args, pointer reply,
// error return.
func (ls *LobbyService) Stats(_ *StatsArgs, reply *StatsReply) error {
	st := ls.rooms.Stats()
	*reply = StatsReply{
		Rooms:       st.Rooms,
		Waiting:     st.Waiting,
		Playing:     st.Playing,
		Finished:    st.Finished,
		Players:     st.Players,
		Connections: ls.sessions.Count(),
	}
	return nil
}

type PlayerStatsArgs struct {
	Username string
}

type PlayerStatsReply struct {
	Stats models.PlayerStats
}

func (ls *LobbyService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	if args.Username == "" {
		return errors.New("username is required")
	}
	if ls.matches == nil {
		return errors.New("match history is not available")
	}
	stats, err := ls.matches.GetPlayerStats(context.Background(), args.Username)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}
