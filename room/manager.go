package room

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wfunc/tictactoe/game"
	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/network"
	"github.com/wfunc/tictactoe/session"
	"github.com/wfunc/tictactoe/state"
)

// CodeLength is the length of a room code.
const CodeLength = 8

const maxCodeAttempts = 32

// ErrNoFreeCode is returned when no unused room code could be generated.
var ErrNoFreeCode = errors.New("could not generate a unique room code")

// Manager is the room registry. It is safe for concurrent use; structural
// changes never take a room's command lock.
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	broadcaster Broadcaster
	recorder    MatchRecorder
	newCode     func() string
}

// NewRoomManager creates an empty registry that broadcasts nowhere until
// SetBroadcaster is called.
func NewRoomManager() *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		broadcaster: nopBroadcaster{},
		newCode:     uuidCode,
	}
}

func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

func (m *Manager) SetRecorder(rec MatchRecorder) {
	m.recorder = rec
}

// uuidCode takes the first eight hex digits of a random UUID, uppercased.
func uuidCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:CodeLength])
}

// CreateRoom registers a waiting room with creator as X and sends the creator
// room-created before any other command can reach the room.
func (m *Manager) CreateRoom(creator *session.Session) (*Room, error) {
	r := newRoom(m)
	r.addPlayer(&Player{
		Session:  creator,
		Username: creator.Username,
		Symbol:   game.X,
	})
	r.resetRound()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.insert(r); err != nil {
		return nil, err
	}
	logger.Log.Infow("room created", "room", r.Code, "user", creator.Username)

	m.broadcaster.ToSession(creator.ID, network.EventRoomCreated, RoomCreatedEvent{
		RoomCode: r.Code,
		Room:     r.snapshot(),
	})
	return r, nil
}

func (m *Manager) insert(r *Room) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := 0; i < maxCodeAttempts; i++ {
		code := m.newCode()
		if _, taken := m.rooms[code]; taken {
			continue
		}
		r.Code = code
		m.rooms[code] = r
		return nil
	}
	return ErrNoFreeCode
}

// RemoveRoom drops a room from the registry.
func (m *Manager) RemoveRoom(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if r, exists := m.rooms[code]; exists {
		r.removed.Store(true)
		delete(m.rooms, code)
		logger.Log.Infow("room removed", "room", code)
	}
}

// GetRoom looks a room up by its exact code. Callers normalize case.
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[code]
	return room, exists
}

// FindBySession returns the room the session plays in, if any.
func (m *Manager) FindBySession(sessionID string) (*Room, bool) {
	return m.FindBySessionExcept(sessionID, nil)
}

// FindBySessionExcept is FindBySession ignoring except.
func (m *Manager) FindBySessionExcept(sessionID string, except *Room) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, r := range m.rooms {
		if r != except && r.hasSession(sessionID) {
			return r, true
		}
	}
	return nil, false
}

// Leave removes the session from whatever room it is in. It is the
// disconnect path and reports whether a room was found.
func (m *Manager) Leave(s *session.Session) bool {
	r, ok := m.FindBySession(s.ID)
	if !ok {
		return false
	}
	return r.Leave(s)
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Stats counts rooms per status and players overall.
type Stats struct {
	Rooms    int
	Waiting  int
	Playing  int
	Finished int
	Players  int
}

func (m *Manager) Stats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	st := Stats{Rooms: len(m.rooms)}
	for _, r := range m.rooms {
		st.Players += r.PlayerCount()
		switch r.Status() {
		case state.Waiting:
			st.Waiting++
		case state.Playing:
			st.Playing++
		case state.Finished:
			st.Finished++
		}
	}
	return st
}
