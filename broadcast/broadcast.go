// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/monitor"
	"github.com/wfunc/tictactoe/room"
	"github.com/wfunc/tictactoe/session"
)

// RoomBroadcaster resolves recipients through the room and session managers.
// Sends are fire-and-forget: a failed write is logged and counted and the
// remaining recipients still get the event.
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
	monitor        *monitor.Monitor
}

var _ room.Broadcaster = (*RoomBroadcaster)(nil)

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager, mon *monitor.Monitor) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
		monitor:        mon,
	}
}

// ToRoom delivers to every player of the room.
func (b *RoomBroadcaster) ToRoom(code, event string, payload any) {
	b.ToRoomExcept(code, "", event, payload)
}

// ToRoomExcept delivers to every player of the room but excludeSessionID.
func (b *RoomBroadcaster) ToRoomExcept(code, excludeSessionID, event string, payload any) {
	r, exists := b.roomManager.GetRoom(code)
	if !exists {
		logger.Log.Debugw("broadcast to unknown room", "room", code, "event", event)
		return
	}

	for _, s := range r.GetSessions() {
		if s.ID == excludeSessionID {
			continue
		}
		b.send(s, event, payload)
	}
}

// ToSession delivers to a single connection.
func (b *RoomBroadcaster) ToSession(sessionID, event string, payload any) {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		logger.Log.Debugw("unicast to unknown session", "session", sessionID, "event", event)
		return
	}
	b.send(s, event, payload)
}

func (b *RoomBroadcaster) send(s *session.Session, event string, payload any) {
	if err := s.Send(event, payload); err != nil {
		logger.Log.Warnw("send failed", "session", s.ID, "user", s.Username, "event", event, "error", err)
		b.monitor.IncSendFailures()
		return
	}
	b.monitor.IncEventsSent(event)
}
