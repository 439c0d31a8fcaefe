package engine

import (
	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeJoin is a session connecting.
	EventTypeJoin EventType = iota + 1
	// EventTypeCommand is a session running a command.
	EventTypeCommand
	// EventTypeMessage is a side-channel payload from a session's connection.
	EventTypeMessage
	// EventTypeDisconnect is a session leaving.
	EventTypeDisconnect

	// eventTypeLinked carries a finished persistence call back to the loop.
	eventTypeLinked
	// eventTypeLookedUp carries a finished join or command lookup back to the loop.
	eventTypeLookedUp
	// eventTypeBarrier is closed by the loop once reached; see Sync.
	eventTypeBarrier
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeCommand:
		return "command"
	case EventTypeMessage:
		return "message"
	case EventTypeDisconnect:
		return "disconnect"
	case eventTypeLinked:
		return "linked"
	case eventTypeLookedUp:
		return "looked_up"
	case eventTypeBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the coordinator loop.
// Session is the identity the runtime authenticated for the connection.
type Event struct {
	Type     EventType
	Session  uuid.UUID
	Name     string
	Position freeze.Position
	Command  string
	Channel  string
	Payload  []byte

	link    *linkResult
	lookup  *lookupResult
	barrier chan struct{}
}

// linkResult is the outcome of a TryLink call made off the loop.
type linkResult struct {
	account int64
	outcome store.LinkOutcome
	err     error
}

// lookupResult is the outcome of a join or command lookup made off the loop.
// s and epoch identify the session state the lookup was started for; the
// loop discards the result if either has changed.
type lookupResult struct {
	join   bool
	s      *session
	epoch  int
	linked bool
	err    error
}
