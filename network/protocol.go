package network

import (
	"encoding/json"
	"errors"
	"strings"
)

// Commands sent by clients.
const (
	CmdCreateRoom   = "create-room"
	CmdJoinRoom     = "join-room"
	CmdLeaveRoom    = "leave-room"
	CmdMakeMove     = "make-move"
	CmdRematch      = "rematch"
	CmdSendReaction = "send-reaction"
	CmdPing         = "ping"
)

// Events sent by the server.
const (
	EventRoomCreated        = "room-created"
	EventPlayerJoined       = "player-joined"
	EventGameStart          = "game-start"
	EventMoveMade           = "move-made"
	EventGameEnd            = "game-end"
	EventRematchStart       = "rematch-start"
	EventRematchRequest     = "rematch-request"
	EventPlayerDisconnected = "player-disconnected"
	EventReactionReceived   = "reaction-received"
	EventRoomLeft           = "room-left"
	EventError              = "error"
	EventPong               = "pong"
)

// ErrBadPayload marks a payload that could not be decoded or validated.
var ErrBadPayload = errors.New("malformed payload")

type MoveRequest struct {
	RoomCode string `json:"roomCode"`
	Position *int   `json:"position"`
}

type ReactionRequest struct {
	RoomCode string          `json:"roomCode"`
	Reaction json.RawMessage `json:"reaction"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NormalizeRoomCode trims and uppercases a user supplied code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DecodeRoomCode reads a bare JSON string payload such as "ab12cd34".
func DecodeRoomCode(data json.RawMessage) (string, error) {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return "", ErrBadPayload
	}
	code = NormalizeRoomCode(code)
	if code == "" {
		return "", ErrBadPayload
	}
	return code, nil
}

func DecodeMove(data json.RawMessage) (*MoveRequest, error) {
	var req MoveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrBadPayload
	}
	req.RoomCode = NormalizeRoomCode(req.RoomCode)
	if req.RoomCode == "" || req.Position == nil {
		return nil, ErrBadPayload
	}
	return &req, nil
}

func DecodeReaction(data json.RawMessage) (*ReactionRequest, error) {
	var req ReactionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrBadPayload
	}
	req.RoomCode = NormalizeRoomCode(req.RoomCode)
	if req.RoomCode == "" {
		return nil, ErrBadPayload
	}
	return &req, nil
}
