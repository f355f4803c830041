// room/room.go
package room

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/tictactoe/game"
	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/network"
	"github.com/wfunc/tictactoe/session"
	"github.com/wfunc/tictactoe/state"
)

// MaxPlayers is the capacity of every room.
const MaxPlayers = 2

// Player is a participant of a room. Symbol is fixed until the player leaves.
type Player struct {
	Session          *session.Session
	Username         string
	Symbol           game.Symbol
	RematchRequested bool
}

// Room is one match between two players.
//
// mu serializes commands: it is held for the whole of Join, Move,
// RequestRematch, Leave and Reaction, including their broadcasts. The player
// list is additionally guarded by playerMutex so the broadcaster can resolve
// recipients while a command holds mu. Board, turn and result are only
// touched under mu.
type Room struct {
	Code      string
	CreatedAt time.Time

	mu           sync.Mutex
	playerMutex  sync.RWMutex
	players      []*Player
	board        game.Board
	turn         game.Symbol
	result       *game.Result
	machine      *state.Machine
	moves        int
	roundStarted time.Time
	removed      atomic.Bool

	manager *Manager
}

func newRoom(m *Manager) *Room {
	r := &Room{
		CreatedAt: time.Now(),
		turn:      game.X,
		machine:   state.NewRoomMachine(),
		manager:   m,
	}
	r.machine.OnTransition(func(from, to state.Status) {
		logger.Log.Debugw("room status changed", "room", r.Code, "from", from, "to", to)
	})
	return r
}

// --- read accessors, safe without the command lock ---

func (r *Room) GetID() string {
	return r.Code
}

func (r *Room) Status() state.Status {
	return r.machine.Current()
}

func (r *Room) PlayerCount() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.players)
}

// GetSessions returns the sessions of all players (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.players))
	for _, p := range r.players {
		sessions = append(sessions, p.Session)
	}
	return sessions
}

func (r *Room) hasSession(sessionID string) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return r.indexOf(sessionID) >= 0
}

// Snapshot copies the current state under the command lock.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// --- commands ---

// Join adds the session as the second player and starts the game. The joiner
// takes whichever symbol is free: after X leaves a room, the newcomer becomes X
// and moves first, since the player who stayed keeps their symbol.
func (r *Room) Join(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed.Load() {
		return ErrRoomNotFound
	}
	if len(r.players) >= MaxPlayers {
		return ErrRoomFull
	}
	for _, p := range r.players {
		if p.Username == s.Username {
			return ErrAlreadyInRoom
		}
	}

	r.addPlayer(&Player{
		Session:  s,
		Username: s.Username,
		Symbol:   r.freeSymbol(),
	})
	r.resetRound()
	if err := r.machine.ChangeState(state.Playing); err != nil {
		return err
	}

	logger.Log.Infow("player joined room", "room", r.Code, "user", s.Username)

	snap := r.snapshot()
	r.broadcast().ToRoom(r.Code, network.EventPlayerJoined, RoomEvent{Room: snap})
	r.broadcast().ToRoom(r.Code, network.EventGameStart, RoomEvent{Room: snap})
	return nil
}

// Move places the session's symbol at position.
func (r *Room) Move(s *session.Session, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed.Load() || r.machine.Current() != state.Playing || !game.ValidPosition(position) {
		return ErrInvalidState
	}
	p := r.player(s.ID)
	if p == nil {
		return ErrNotAParticipant
	}
	if p.Symbol != r.turn {
		return ErrNotYourTurn
	}
	if r.board[position] != game.Empty {
		return ErrCellOccupied
	}

	r.board[position] = p.Symbol
	r.turn = r.turn.Opponent()
	r.moves++

	result := game.Evaluate(r.board)
	if result == nil {
		r.broadcast().ToRoom(r.Code, network.EventMoveMade, MoveMadeEvent{
			Room:     r.snapshot(),
			Position: position,
			Symbol:   p.Symbol,
		})
		return nil
	}

	r.result = result
	if err := r.machine.ChangeState(state.Finished); err != nil {
		return err
	}
	logger.Log.Infow("game finished", "room", r.Code, "winner", result.Winner, "moves", r.moves)

	snap := r.snapshot()
	r.broadcast().ToRoom(r.Code, network.EventGameEnd, GameEndEvent{Room: snap, Result: snap.Result})
	r.record()
	return nil
}

// RequestRematch flags the session's player. Once both players asked, the
// board is cleared and X moves first again.
func (r *Room) RequestRematch(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed.Load() {
		return ErrRoomNotFound
	}
	p := r.player(s.ID)
	if p == nil {
		return ErrNotAParticipant
	}
	if p.RematchRequested {
		return nil
	}
	p.RematchRequested = true

	if len(r.players) < MaxPlayers || !r.allWantRematch() {
		r.broadcast().ToRoom(r.Code, network.EventRematchRequest, RematchRequestEvent{Username: p.Username})
		return nil
	}

	r.resetRound()
	if err := r.machine.ChangeState(state.Playing); err != nil {
		return err
	}
	logger.Log.Infow("rematch started", "room", r.Code)

	r.broadcast().ToRoom(r.Code, network.EventRematchStart, RoomEvent{Room: r.snapshot()})
	return nil
}

// Leave removes the session's player. It reports whether the session was in
// the room. The last player out deletes the room from the registry; otherwise
// the remaining player is sent back to waiting with a fresh board.
func (r *Room) Leave(s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removePlayer(s.ID) {
		return false
	}
	logger.Log.Infow("player left room", "room", r.Code, "user", s.Username)

	if len(r.players) == 0 {
		r.removed.Store(true)
		r.manager.RemoveRoom(r.Code)
		return true
	}

	r.resetRound()
	if err := r.machine.ChangeState(state.Waiting); err != nil {
		logger.Log.Errorw("status change on leave failed", "room", r.Code, "error", err)
	}
	r.broadcast().ToRoom(r.Code, network.EventPlayerDisconnected, RoomEvent{Room: r.snapshot()})
	return true
}

// Reaction relays payload to the other players. Unknown senders are ignored.
func (r *Room) Reaction(s *session.Session, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed.Load() {
		return
	}
	p := r.player(s.ID)
	if p == nil {
		return
	}
	r.broadcast().ToRoomExcept(r.Code, s.ID, network.EventReactionReceived, ReactionEvent{
		Username: p.Username,
		Reaction: payload,
	})
}

// --- helpers, called with mu held ---

func (r *Room) broadcast() Broadcaster {
	return r.manager.broadcaster
}

func (r *Room) indexOf(sessionID string) int {
	for i, p := range r.players {
		if p.Session.ID == sessionID {
			return i
		}
	}
	return -1
}

func (r *Room) player(sessionID string) *Player {
	if i := r.indexOf(sessionID); i >= 0 {
		return r.players[i]
	}
	return nil
}

func (r *Room) addPlayer(p *Player) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()
	r.players = append(r.players, p)
}

func (r *Room) removePlayer(sessionID string) bool {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	i := r.indexOf(sessionID)
	if i < 0 {
		return false
	}
	r.players = append(r.players[:i], r.players[i+1:]...)
	return true
}

// freeSymbol returns X unless a remaining player already holds it.
func (r *Room) freeSymbol() game.Symbol {
	for _, p := range r.players {
		if p.Symbol == game.X {
			return game.O
		}
	}
	return game.X
}

func (r *Room) allWantRematch() bool {
	for _, p := range r.players {
		if !p.RematchRequested {
			return false
		}
	}
	return true
}

func (r *Room) resetRound() {
	r.board = game.Board{}
	r.turn = game.X
	r.result = nil
	r.moves = 0
	r.roundStarted = time.Now()
	for _, p := range r.players {
		p.RematchRequested = false
	}
}

func (r *Room) snapshot() Snapshot {
	players := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, PlayerView{
			Username:         p.Username,
			Symbol:           p.Symbol,
			RematchRequested: p.RematchRequested,
		})
	}

	var result *game.Result
	if r.result != nil {
		result = &game.Result{Winner: r.result.Winner}
		if r.result.Line != nil {
			result.Line = append([]int(nil), r.result.Line...)
		}
	}

	return Snapshot{
		Code:      r.Code,
		Players:   players,
		Board:     r.board,
		Turn:      r.turn,
		Status:    r.machine.Current(),
		Result:    result,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Room) record() {
	rec := r.manager.recorder
	if rec == nil {
		return
	}

	m := Match{
		RoomCode:   r.Code,
		Winner:     string(r.result.Winner),
		Line:       append([]int(nil), r.result.Line...),
		Moves:      r.moves,
		StartedAt:  r.roundStarted,
		FinishedAt: time.Now(),
	}
	for _, p := range r.players {
		switch p.Symbol {
		case game.X:
			m.PlayerX = p.Username
		case game.O:
			m.PlayerO = p.Username
		}
	}
	rec.RecordMatch(m)
}
