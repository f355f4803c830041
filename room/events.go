package room

import (
	"encoding/json"
	"time"

	"github.com/wfunc/tictactoe/game"
	"github.com/wfunc/tictactoe/state"
)

// PlayerView is the public part of a Player.
type PlayerView struct {
	Username         string      `json:"username"`
	Symbol           game.Symbol `json:"symbol"`
	RematchRequested bool        `json:"rematchRequested"`
}

// Snapshot is the room state carried by most events.
type Snapshot struct {
	Code      string       `json:"code"`
	Players   []PlayerView `json:"players"`
	Board     game.Board   `json:"board"`
	Turn      game.Symbol  `json:"turn"`
	Status    state.Status `json:"status"`
	Result    *game.Result `json:"result"`
	CreatedAt time.Time    `json:"createdAt"`
}

type RoomCreatedEvent struct {
	RoomCode string   `json:"roomCode"`
	Room     Snapshot `json:"room"`
}

// RoomEvent is used by player-joined, game-start, rematch-start and
// player-disconnected.
type RoomEvent struct {
	Room Snapshot `json:"room"`
}

type MoveMadeEvent struct {
	Room     Snapshot    `json:"room"`
	Position int         `json:"position"`
	Symbol   game.Symbol `json:"symbol"`
}

type GameEndEvent struct {
	Room   Snapshot     `json:"room"`
	Result *game.Result `json:"result"`
}

type RematchRequestEvent struct {
	Username string `json:"username"`
}

type ReactionEvent struct {
	Username string          `json:"username"`
	Reaction json.RawMessage `json:"reaction"`
}

type RoomLeftEvent struct {
	RoomCode string `json:"roomCode"`
}
