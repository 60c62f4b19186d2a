package relay

// State is the lifecycle of one websocket connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthorized
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorized:
		return "authorized"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind selects which channel a connection joins and how it handles inbound frames.
type Kind string

const (
	KindChat      Kind = "chat"
	KindSignaling Kind = "signaling"
	KindPersonal  Kind = "personal"
)

// Close codes sent before the connection is dropped.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseNotFound        = 4004
)
