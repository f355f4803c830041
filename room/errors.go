package room

// Error is a recoverable game error reported to the originating connection.
// Message is shown to players as is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrRoomNotFound    = &Error{Code: "ROOM_NOT_FOUND", Message: "Room not found"}
	ErrRoomFull        = &Error{Code: "ROOM_FULL", Message: "Room is full"}
	ErrAlreadyInRoom   = &Error{Code: "ALREADY_IN_ROOM", Message: "You are already in this room"}
	ErrInvalidState    = &Error{Code: "INVALID_STATE", Message: "Invalid game state"}
	ErrNotAParticipant = &Error{Code: "NOT_A_PARTICIPANT", Message: "You are not in this game"}
	ErrNotYourTurn     = &Error{Code: "NOT_YOUR_TURN", Message: "Not your turn"}
	ErrCellOccupied    = &Error{Code: "CELL_OCCUPIED", Message: "Position already taken"}
	ErrUnauthenticated = &Error{Code: "UNAUTHENTICATED", Message: "Not authenticated"}
)
