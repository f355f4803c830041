package room

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/tictactoe/game"
	"github.com/wfunc/tictactoe/network"
	"github.com/wfunc/tictactoe/session"
	"github.com/wfunc/tictactoe/state"
)

// sentEvent is one call recorded by MockBroadcaster.
type sentEvent struct {
	Code    string
	Except  string
	Session string
	Event   string
	Payload any
}

// MockBroadcaster is a test double for the Broadcaster interface.
type MockBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (m *MockBroadcaster) ToRoom(code, event string, payload any) {
	m.add(sentEvent{Code: code, Event: event, Payload: payload})
}

func (m *MockBroadcaster) ToRoomExcept(code, except, event string, payload any) {
	m.add(sentEvent{Code: code, Except: except, Event: event, Payload: payload})
}

func (m *MockBroadcaster) ToSession(sessionID, event string, payload any) {
	m.add(sentEvent{Session: sessionID, Event: event, Payload: payload})
}

func (m *MockBroadcaster) add(e sentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MockBroadcaster) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Event)
	}
	return out
}

func (m *MockBroadcaster) last() sentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

func (m *MockBroadcaster) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// MockRecorder collects finished matches.
type MockRecorder struct {
	mu      sync.Mutex
	matches []Match
}

func (m *MockRecorder) RecordMatch(match Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, match)
}

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(event string, payload any) error   { return nil }
func (m *MockConnection) Close() error                          { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                  { return &net.TCPAddr{} }
func (m *MockConnection) ReadMessage() (*network.Message, error) { return nil, nil }

func newTestSession(id, username string) *session.Session {
	return session.NewSession(id, username, &MockConnection{})
}

type fixture struct {
	manager     *Manager
	broadcaster *MockBroadcaster
	recorder    *MockRecorder
	alice, bob  *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		manager:     NewRoomManager(),
		broadcaster: &MockBroadcaster{},
		recorder:    &MockRecorder{},
		alice:       newTestSession("s-alice", "alice"),
		bob:         newTestSession("s-bob", "bob"),
	}
	f.manager.SetBroadcaster(f.broadcaster)
	f.manager.SetRecorder(f.recorder)
	return f
}

// playing returns a room where alice is X, bob is O and the game has started.
func (f *fixture) playing(t *testing.T) *Room {
	t.Helper()
	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)
	require.NoError(t, r.Join(f.bob))
	f.broadcaster.reset()
	return r
}

func (f *fixture) play(t *testing.T, r *Room, positions ...int) {
	t.Helper()
	players := []*session.Session{f.alice, f.bob}
	for i, pos := range positions {
		require.NoError(t, r.Move(players[i%2], pos), "move %d at %d", i, pos)
	}
}

func TestManager_CreateRoom(t *testing.T) {
	f := newFixture(t)

	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)

	assert.Len(t, r.Code, CodeLength)
	assert.Regexp(t, `^[0-9A-F]{8}$`, r.Code)

	got, ok := f.manager.GetRoom(r.Code)
	require.True(t, ok)
	assert.Same(t, r, got)

	snap := r.Snapshot()
	assert.Equal(t, state.Waiting, snap.Status)
	assert.Equal(t, game.X, snap.Turn)
	assert.Equal(t, game.Board{}, snap.Board)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, PlayerView{Username: "alice", Symbol: game.X}, snap.Players[0])

	e := f.broadcaster.last()
	assert.Equal(t, network.EventRoomCreated, e.Event)
	assert.Equal(t, f.alice.ID, e.Session)
	created := e.Payload.(RoomCreatedEvent)
	assert.Equal(t, r.Code, created.RoomCode)
}

func TestManager_CodesAreDistinct(t *testing.T) {
	m := NewRoomManager()
	seen := make(map[string]bool)

	for i := 0; i < 10000; i++ {
		r, err := m.CreateRoom(newTestSession(fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i)))
		require.NoError(t, err)
		require.False(t, seen[r.Code], "duplicate code %s", r.Code)
		seen[r.Code] = true
	}
	assert.Equal(t, 10000, m.Count())
}

func TestManager_CodeCollisionRetries(t *testing.T) {
	m := NewRoomManager()
	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	m.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	r1, err := m.CreateRoom(newTestSession("s1", "u1"))
	require.NoError(t, err)
	r2, err := m.CreateRoom(newTestSession("s2", "u2"))
	require.NoError(t, err)

	assert.Equal(t, "AAAAAAAA", r1.Code)
	assert.Equal(t, "BBBBBBBB", r2.Code)
}

func TestManager_CodeSpaceExhausted(t *testing.T) {
	m := NewRoomManager()
	m.newCode = func() string { return "SAMECODE" }

	_, err := m.CreateRoom(newTestSession("s1", "u1"))
	require.NoError(t, err)

	_, err = m.CreateRoom(newTestSession("s2", "u2"))
	assert.ErrorIs(t, err, ErrNoFreeCode)
	assert.Equal(t, 1, m.Count())
}

func TestRoom_Join(t *testing.T) {
	f := newFixture(t)
	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)
	f.broadcaster.reset()

	require.NoError(t, r.Join(f.bob))

	assert.Equal(t, []string{network.EventPlayerJoined, network.EventGameStart}, f.broadcaster.names())
	snap := r.Snapshot()
	assert.Equal(t, state.Playing, snap.Status)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, game.O, snap.Players[1].Symbol)
	assert.Equal(t, "bob", snap.Players[1].Username)
}

func TestRoom_Join_Full(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	before := r.Snapshot()

	err := r.Join(newTestSession("s-carol", "carol"))
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, before, r.Snapshot())
	assert.Empty(t, f.broadcaster.names())
}

func TestRoom_Join_AlreadyInRoom(t *testing.T) {
	f := newFixture(t)
	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)

	// Same identity from a second connection.
	err = r.Join(newTestSession("s-alice-2", "alice"))
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Equal(t, state.Waiting, r.Status())
	assert.Equal(t, 1, r.PlayerCount())
}

func TestRoom_Join_RemovedRoom(t *testing.T) {
	f := newFixture(t)
	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)
	require.True(t, r.Leave(f.alice))

	assert.ErrorIs(t, r.Join(f.bob), ErrRoomNotFound)
}

func TestRoom_Move_Win(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)

	f.play(t, r, 0, 3, 1, 4)
	assert.Equal(t, network.EventMoveMade, f.broadcaster.last().Event)
	moved := f.broadcaster.last().Payload.(MoveMadeEvent)
	assert.Equal(t, 4, moved.Position)
	assert.Equal(t, game.O, moved.Symbol)

	require.NoError(t, r.Move(f.alice, 2))

	e := f.broadcaster.last()
	require.Equal(t, network.EventGameEnd, e.Event)
	end := e.Payload.(GameEndEvent)
	assert.Equal(t, &game.Result{Winner: game.OutcomeX, Line: []int{0, 1, 2}}, end.Result)
	assert.Equal(t, state.Finished, end.Room.Status)

	require.Len(t, f.recorder.matches, 1)
	match := f.recorder.matches[0]
	assert.Equal(t, "alice", match.PlayerX)
	assert.Equal(t, "bob", match.PlayerO)
	assert.Equal(t, "X", match.Winner)
	assert.Equal(t, 5, match.Moves)

	// No more moves once finished.
	assert.ErrorIs(t, r.Move(f.bob, 8), ErrInvalidState)
}

func TestRoom_Move_Draw(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)

	f.play(t, r, 0, 1, 2, 4, 3, 5, 7, 6, 8)

	snap := r.Snapshot()
	assert.Equal(t, state.Finished, snap.Status)
	assert.Equal(t, &game.Result{Winner: game.OutcomeDraw}, snap.Result)
	assert.Equal(t, network.EventGameEnd, f.broadcaster.last().Event)
}

func TestRoom_Move_Rejections(t *testing.T) {
	f := newFixture(t)

	waiting, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)
	assert.ErrorIs(t, waiting.Move(f.alice, 0), ErrInvalidState)

	f2 := newFixture(t)
	r := f2.playing(t)

	tests := []struct {
		name     string
		session  *session.Session
		position int
		want     error
	}{
		{"out of range high", f2.alice, 9, ErrInvalidState},
		{"out of range low", f2.alice, -1, ErrInvalidState},
		{"stranger", newTestSession("s-eve", "eve"), 0, ErrNotAParticipant},
		{"wrong turn", f2.bob, 0, ErrNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := r.Snapshot()
			assert.ErrorIs(t, r.Move(tt.session, tt.position), tt.want)
			assert.Equal(t, before, r.Snapshot())
		})
	}

	require.NoError(t, r.Move(f2.alice, 4))
	before := r.Snapshot()
	assert.ErrorIs(t, r.Move(f2.bob, 4), ErrCellOccupied)
	assert.Equal(t, before, r.Snapshot())
	assert.Equal(t, game.O, r.Snapshot().Turn)
}

// Random play: accepted moves flip the turn and fill exactly one empty cell,
// rejected ones change nothing.
func TestRoom_Move_RandomPlay(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		f := newFixture(t)
		r := f.playing(t)

		for r.Status() == state.Playing {
			before := r.Snapshot()
			mover := f.alice
			if rng.Intn(2) == 1 {
				mover = f.bob
			}
			pos := rng.Intn(game.Cells)

			err := r.Move(mover, pos)
			after := r.Snapshot()
			if err != nil {
				require.Equal(t, before, after)
				continue
			}

			require.Equal(t, game.Empty, before.Board[pos])
			require.Equal(t, before.Turn, after.Board[pos])
			require.Equal(t, before.Turn.Opponent(), after.Turn)
			for i := range before.Board {
				if i != pos {
					require.Equal(t, before.Board[i], after.Board[i])
				}
			}
		}
		require.NotNil(t, r.Snapshot().Result)
	}
}

func TestRoom_Rematch(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	f.play(t, r, 0, 3, 1, 4, 2)
	f.broadcaster.reset()

	require.NoError(t, r.RequestRematch(f.bob))
	assert.Equal(t, state.Finished, r.Status())
	e := f.broadcaster.last()
	assert.Equal(t, network.EventRematchRequest, e.Event)
	assert.Equal(t, RematchRequestEvent{Username: "bob"}, e.Payload)

	// A repeated request is a no-op.
	require.NoError(t, r.RequestRematch(f.bob))
	assert.Len(t, f.broadcaster.names(), 1)

	require.NoError(t, r.RequestRematch(f.alice))
	assert.Equal(t, network.EventRematchStart, f.broadcaster.last().Event)

	snap := r.Snapshot()
	assert.Equal(t, state.Playing, snap.Status)
	assert.Equal(t, game.Board{}, snap.Board)
	assert.Equal(t, game.X, snap.Turn)
	assert.Nil(t, snap.Result)
	for _, p := range snap.Players {
		assert.False(t, p.RematchRequested)
	}
	// Symbols survive the rematch.
	assert.Equal(t, game.X, snap.Players[0].Symbol)
	assert.Equal(t, game.O, snap.Players[1].Symbol)

	// X still opens after O won the previous round.
	f.play(t, r, 3, 0, 4, 1, 8, 2)
	require.Equal(t, game.OutcomeO, r.Snapshot().Result.Winner)
	require.NoError(t, r.RequestRematch(f.alice))
	require.NoError(t, r.RequestRematch(f.bob))
	assert.Equal(t, game.X, r.Snapshot().Turn)
	assert.ErrorIs(t, r.Move(f.bob, 0), ErrNotYourTurn)
}

func TestRoom_Rematch_Errors(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)

	assert.ErrorIs(t, r.RequestRematch(newTestSession("s-eve", "eve")), ErrNotAParticipant)

	f.manager.RemoveRoom(r.Code)
	assert.ErrorIs(t, r.RequestRematch(f.alice), ErrRoomNotFound)
}

func TestRoom_Rematch_AlonePlayerWaits(t *testing.T) {
	f := newFixture(t)
	r, err := f.manager.CreateRoom(f.alice)
	require.NoError(t, err)

	require.NoError(t, r.RequestRematch(f.alice))
	assert.Equal(t, state.Waiting, r.Status())
	assert.Equal(t, network.EventRematchRequest, f.broadcaster.last().Event)
}

func TestRoom_Leave(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	f.play(t, r, 4)

	assert.True(t, f.manager.Leave(f.bob))

	snap := r.Snapshot()
	assert.Equal(t, state.Waiting, snap.Status)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].Username)
	assert.Equal(t, game.Board{}, snap.Board)
	e := f.broadcaster.last()
	assert.Equal(t, network.EventPlayerDisconnected, e.Event)
	assert.Equal(t, r.Code, e.Code)

	_, ok := f.manager.GetRoom(r.Code)
	assert.True(t, ok)

	// Leaving twice finds nothing.
	assert.False(t, f.manager.Leave(f.bob))

	assert.True(t, f.manager.Leave(f.alice))
	_, ok = f.manager.GetRoom(r.Code)
	assert.False(t, ok)
	assert.Equal(t, 0, f.manager.Count())
}

func TestRoom_Leave_FromFinished(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	f.play(t, r, 0, 3, 1, 4, 2)
	require.NoError(t, r.RequestRematch(f.alice))

	require.True(t, r.Leave(f.alice))

	snap := r.Snapshot()
	assert.Equal(t, state.Waiting, snap.Status)
	assert.Nil(t, snap.Result)
	require.Len(t, snap.Players, 1)
	assert.False(t, snap.Players[0].RematchRequested)
}

func TestRoom_RejoinTakesFreeSymbol(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	require.True(t, r.Leave(f.alice))

	carol := newTestSession("s-carol", "carol")
	require.NoError(t, r.Join(carol))

	snap := r.Snapshot()
	assert.Equal(t, state.Playing, snap.Status)
	assert.Equal(t, game.O, snap.Players[0].Symbol)
	assert.Equal(t, game.X, snap.Players[1].Symbol)

	// carol holds X and therefore opens.
	assert.ErrorIs(t, r.Move(f.bob, 0), ErrNotYourTurn)
	assert.NoError(t, r.Move(carol, 0))
}

func TestRoom_Reaction(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)

	r.Reaction(f.alice, json.RawMessage(`"🔥"`))
	e := f.broadcaster.last()
	assert.Equal(t, network.EventReactionReceived, e.Event)
	assert.Equal(t, f.alice.ID, e.Except)
	assert.Equal(t, ReactionEvent{Username: "alice", Reaction: json.RawMessage(`"🔥"`)}, e.Payload)

	f.broadcaster.reset()
	r.Reaction(newTestSession("s-eve", "eve"), json.RawMessage(`"x"`))
	assert.Empty(t, f.broadcaster.names())
}

func TestManager_FindBySessionAndStats(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)
	_, err := f.manager.CreateRoom(newTestSession("s-carol", "carol"))
	require.NoError(t, err)

	found, ok := f.manager.FindBySession(f.bob.ID)
	require.True(t, ok)
	assert.Same(t, r, found)

	_, ok = f.manager.FindBySession("nobody")
	assert.False(t, ok)

	_, ok = f.manager.FindBySessionExcept(f.bob.ID, r)
	assert.False(t, ok)

	st := f.manager.Stats()
	assert.Equal(t, Stats{Rooms: 2, Waiting: 1, Playing: 1, Players: 3}, st)
}

func TestRoom_ConcurrentMoves(t *testing.T) {
	f := newFixture(t)
	r := f.playing(t)

	var wg sync.WaitGroup
	for _, s := range []*session.Session{f.alice, f.bob} {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			for pos := 0; pos < game.Cells; pos++ {
				_ = r.Move(s, pos)
			}
		}(s)
	}
	wg.Wait()

	snap := r.Snapshot()
	var xs, os int
	for _, c := range snap.Board {
		switch c {
		case game.X:
			xs++
		case game.O:
			os++
		}
	}
	assert.True(t, xs == os || xs == os+1, "x=%d o=%d", xs, os)
}
