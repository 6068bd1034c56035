package call

import "strings"

// State is the call session's lifecycle position. Exactly one call exists at
// a time; every terminal path converges back on StateIdle.
type State int

const (
	StateIdle State = iota
	StateInitiating
	StateConnecting
	StateActive
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiating:
		return "initiating"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// ErrorCategory buckets call failures for user-facing messaging.
type ErrorCategory string

const (
	CategoryPermission ErrorCategory = "permission"
	CategoryNetwork    ErrorCategory = "network"
	CategoryGeneric    ErrorCategory = "generic"
)

// Classify maps a failure to its user-facing category.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"):
		return CategoryPermission
	case strings.Contains(msg, "network"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "channel lost"):
		return CategoryNetwork
	default:
		return CategoryGeneric
	}
}

// EventKind enumerates everything the controller reports.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventConnected
	EventPeerJoined
	EventPeerLeft
	EventEnded
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventConnected:
		return "connected"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one observable controller notification. Public operations never
// surface transport errors directly; failures arrive here, categorized.
type Event struct {
	Kind     EventKind
	State    State
	Peer     string
	Category ErrorCategory
	Err      error
}
