package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/tictactoe/auth"
	"github.com/wfunc/tictactoe/broadcast"
	"github.com/wfunc/tictactoe/config"
	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/monitor"
	"github.com/wfunc/tictactoe/network"
	"github.com/wfunc/tictactoe/room"
	"github.com/wfunc/tictactoe/rpc"
	"github.com/wfunc/tictactoe/session"
	"github.com/wfunc/tictactoe/timer"
)

// StatsInterval is how often room gauges are refreshed.
const StatsInterval = 5 * time.Second

type handlerFunc func(sess *session.Session, data json.RawMessage) error

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	auth           *auth.Service
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	monitor        *monitor.Monitor
	stats          rpc.StatsReader
	timers         *timer.Manager
	handlers       map[string]handlerFunc
	mux            *http.ServeMux

	mutex        sync.Mutex
	httpServer   *http.Server
	rpcServer    *rpc.Server
	healthServer *rpc.HealthServer
}

// NewGameServer wires the registries together. recorder and stats may be nil.
func NewGameServer(cfg *config.Config, authService *auth.Service, recorder room.MatchRecorder, stats rpc.StatsReader, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		auth:           authService,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		monitor:        mon,
		stats:          stats,
		timers:         timer.NewManager(timer.DefaultResolution),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager, mon)
	s.roomManager.SetBroadcaster(s.broadcaster)
	if recorder != nil {
		s.roomManager.SetRecorder(recorder)
	}

	s.handlers = map[string]handlerFunc{
		network.CmdCreateRoom:   s.handleCreateRoom,
		network.CmdJoinRoom:     s.handleJoinRoom,
		network.CmdLeaveRoom:    s.handleLeaveRoom,
		network.CmdMakeMove:     s.handleMakeMove,
		network.CmdRematch:      s.handleRematch,
		network.CmdSendReaction: s.handleSendReaction,
		network.CmdPing:         s.handlePing,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	authService.RegisterRoutes(s.mux)
	if cfg.Server.MetricsEnabled && mon != nil {
		s.mux.Handle("GET /metrics", mon.Handler())
	}
	return s
}

func (s *GameServer) Handler() http.Handler {
	return s.mux
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Sessions() *session.Manager {
	return s.sessionManager
}

// Start serves HTTP and the optional RPC and health listeners. It blocks until
// Shutdown is called.
func (s *GameServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.HTTPAddress, err)
	}

	s.mutex.Lock()
	s.httpServer = &http.Server{Handler: s.mux}
	if addr := s.cfg.Server.RPCAddress; addr != "" {
		lobby := rpc.NewLobbyService(s.roomManager, s.sessionManager, s.stats)
		if s.rpcServer, err = rpc.NewServer(addr, lobby); err != nil {
			s.mutex.Unlock()
			ln.Close()
			return fmt.Errorf("rpc server: %w", err)
		}
		go s.rpcServer.Start()
	}
	if addr := s.cfg.Server.GRPCAddress; addr != "" {
		if s.healthServer, err = rpc.NewHealthServer(addr); err != nil {
			s.mutex.Unlock()
			ln.Close()
			return fmt.Errorf("health server: %w", err)
		}
		go s.healthServer.Start()
		s.healthServer.SetServing(true)
	}
	httpServer := s.httpServer
	s.mutex.Unlock()

	s.timers.Every(StatsInterval, s.sampleRooms)

	logger.Log.Infof("Game server listening on %s", ln.Addr())
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes live websockets and stops the
// background listeners.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.healthServer != nil {
		s.healthServer.SetServing(false)
		s.healthServer.Stop()
	}
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	s.timers.Stop()
	return err
}

func (s *GameServer) sampleRooms() {
	st := s.roomManager.Stats()
	s.monitor.SetRooms(st.Rooms, st.Waiting, st.Playing, st.Finished)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username, err := s.auth.Authenticate(r)
	if err != nil {
		s.monitor.IncAuthFailures()
		logger.Log.Infow("rejected websocket handshake", "remote", r.RemoteAddr, "error", err)
		http.Error(w, room.ErrUnauthenticated.Message, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, username)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, username string) {
	ws := s.cfg.WebSocket
	wsConn := network.NewWSConnection(conn, network.Options{
		PingInterval:   ws.PingInterval,
		PongWait:       ws.PongWait,
		WriteWait:      ws.WriteWait,
		MaxMessageSize: ws.MaxMessageSize,
		SendBuffer:     ws.SendBuffer,
	})
	sess := session.NewSession(uuid.New().String(), username, wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infow("connection opened",
		"remote", wsConn.RemoteAddr(),
		"session", sess.ID,
		"user", username,
		"connections", len(s.sessionManager.GetByUsername(username)),
	)

	defer func() {
		s.roomManager.Leave(sess)
		s.sessionManager.Remove(sess.ID)
		s.monitor.DecOnlinePlayers()
		sess.Close()
		logger.Log.Infow("connection closed", "session", sess.ID, "user", username)
	}()

	for {
		msg, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warnw("unexpected close", "session", sess.ID, "error", err)
			}
			return
		}
		sess.Touch()
		s.dispatch(sess, msg)
	}
}

func (s *GameServer) dispatch(sess *session.Session, msg *network.Message) {
	handler, ok := s.handlers[msg.Event]
	if !ok {
		logger.Log.Debugw("unknown event", "session", sess.ID, "event", msg.Event)
		return
	}

	s.monitor.IncCommand(msg.Event)
	start := time.Now()
	err := s.call(handler, sess, msg)
	s.monitor.ObserveCommandLatency(time.Since(start))

	if err != nil {
		s.sendError(sess, msg.Event, err)
	}
}

// call runs one handler; a panic is reported as an invalid state.
func (s *GameServer) call(handler handlerFunc, sess *session.Session, msg *network.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("handler panic", "session", sess.ID, "event", msg.Event, "panic", r)
			err = room.ErrInvalidState
		}
	}()
	return handler(sess, msg.Data)
}

func (s *GameServer) sendError(sess *session.Session, event string, err error) {
	var gameErr *room.Error
	if !errors.As(err, &gameErr) {
		if !errors.Is(err, network.ErrBadPayload) {
			logger.Log.Errorw("command failed", "session", sess.ID, "event", event, "error", err)
		}
		gameErr = room.ErrInvalidState
	}

	s.monitor.IncCommandError(gameErr.Code)
	s.broadcaster.ToSession(sess.ID, network.EventError, network.ErrorEvent{
		Message: gameErr.Message,
		Code:    gameErr.Code,
	})
}

// leaveOther drops the session from any room other than keep. It runs only
// after the command that placed the session in keep succeeded.
func (s *GameServer) leaveOther(sess *session.Session, keep *room.Room) {
	for {
		current, ok := s.roomManager.FindBySessionExcept(sess.ID, keep)
		if !ok || !current.Leave(sess) {
			return
		}
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, _ json.RawMessage) error {
	r, err := s.roomManager.CreateRoom(sess)
	if err != nil {
		return err
	}
	s.leaveOther(sess, r)
	return nil
}

// handleJoinRoom leaves the previous room only once the join succeeded, so a
// rejected join changes nothing.
func (s *GameServer) handleJoinRoom(sess *session.Session, data json.RawMessage) error {
	code, err := network.DecodeRoomCode(data)
	if err != nil {
		return err
	}
	r, ok := s.roomManager.GetRoom(code)
	if !ok {
		return room.ErrRoomNotFound
	}
	if err := r.Join(sess); err != nil {
		return err
	}
	s.leaveOther(sess, r)
	return nil
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, data json.RawMessage) error {
	code, err := network.DecodeRoomCode(data)
	if err != nil {
		return err
	}
	r, ok := s.roomManager.GetRoom(code)
	if !ok {
		return room.ErrRoomNotFound
	}
	if !r.Leave(sess) {
		return room.ErrNotAParticipant
	}
	s.broadcaster.ToSession(sess.ID, network.EventRoomLeft, room.RoomLeftEvent{RoomCode: code})
	return nil
}

func (s *GameServer) handleMakeMove(sess *session.Session, data json.RawMessage) error {
	req, err := network.DecodeMove(data)
	if err != nil {
		return err
	}
	r, ok := s.roomManager.GetRoom(req.RoomCode)
	if !ok {
		return room.ErrInvalidState
	}
	return r.Move(sess, *req.Position)
}

func (s *GameServer) handleRematch(sess *session.Session, data json.RawMessage) error {
	code, err := network.DecodeRoomCode(data)
	if err != nil {
		return err
	}
	r, ok := s.roomManager.GetRoom(code)
	if !ok {
		return room.ErrRoomNotFound
	}
	return r.RequestRematch(sess)
}

// handleSendReaction is silent for unknown rooms and non-participants. A
// payload that does not decode is still a malformed command and gets the
// usual InvalidState error.
func (s *GameServer) handleSendReaction(sess *session.Session, data json.RawMessage) error {
	req, err := network.DecodeReaction(data)
	if err != nil {
		return err
	}
	if r, ok := s.roomManager.GetRoom(req.RoomCode); ok {
		r.Reaction(sess, req.Reaction)
	}
	return nil
}

func (s *GameServer) handlePing(sess *session.Session, _ json.RawMessage) error {
	s.broadcaster.ToSession(sess.ID, network.EventPong, nil)
	return nil
}
