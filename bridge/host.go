package bridge

import "github.com/google/uuid"

// Player is a connected session on the host server.
type Player struct {
	ID   uuid.UUID
	Name string
}

// Host is the game server the bridge is attached to.
//
// Everything except Submit must only be called from the host's own execution
// context. Code running on the socket goroutine hands work over with Submit.
type Host interface {
	// Player resolves a connected session by identity.
	Player(id uuid.UUID) (Player, bool)
	// Disconnect drops a connected session with a human readable reason.
	Disconnect(id uuid.UUID, reason string)
	// SetOperator grants or revokes operator privileges.
	SetOperator(id uuid.UUID, op bool)
	// Broadcast sends a formatted line to every connected session.
	Broadcast(line Line)
	// Players lists connected sessions.
	Players() []Player
	// PlayerCount reports the number of connected sessions.
	PlayerCount() int
	// Submit schedules fn on the host execution context. Safe from any goroutine.
	Submit(fn func())
}
