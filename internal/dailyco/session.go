package dailyco

import "context"

// EventKind enumerates everything a call-room session can report.
type EventKind int

const (
	EventJoined EventKind = iota
	EventLeft
	EventParticipantJoined
	EventParticipantLeft
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventParticipantJoined:
		return "participant-joined"
	case EventParticipantLeft:
		return "participant-left"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one session-lifecycle notification.
type Event struct {
	Kind        EventKind
	Participant string // display name, for participant events
	Err         error  // set for EventError
}

// JoinOptions configure entering a call room.
type JoinOptions struct {
	URL           string
	DisplayName   string
	StartVideoOff bool
	StartAudioOff bool
}

// Session is one media session with the call-room service. Implementations
// wrap the vendor SDK; tests substitute fakes. Events must be delivered on
// the Events channel until Destroy is called.
type Session interface {
	Join(ctx context.Context, opts JoinOptions) error
	Events() <-chan Event
	SetLocalAudio(enabled bool)
	SetLocalVideo(enabled bool)
	Leave() error
	Destroy()
}

// SessionFactory builds a fresh Session per call.
type SessionFactory func() Session
