package room

import "time"

// Broadcaster delivers events to the connections of a room. It is defined
// here to break the import cycle between room and broadcast. Delivery is
// fire-and-forget.
type Broadcaster interface {
	ToRoom(code, event string, payload any)
	ToRoomExcept(code, excludeSessionID, event string, payload any)
	ToSession(sessionID, event string, payload any)
}

// MatchRecorder receives every finished round. Implementations must not block.
type MatchRecorder interface {
	RecordMatch(m Match)
}

// Match summarizes one finished round.
type Match struct {
	RoomCode   string
	PlayerX    string
	PlayerO    string
	Winner     string // X, O or draw
	Line       []int
	Moves      int
	StartedAt  time.Time
	FinishedAt time.Time
}

type nopBroadcaster struct{}

func (nopBroadcaster) ToRoom(string, string, any)               {}
func (nopBroadcaster) ToRoomExcept(string, string, string, any) {}
func (nopBroadcaster) ToSession(string, string, any)            {}
