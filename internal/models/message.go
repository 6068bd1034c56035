package models

import "encoding/json"

// EnvelopeType tags a frame on the signaling channel.
type EnvelopeType string

const (
	// Client -> relay.
	EnvelopeJoin   EnvelopeType = "join"
	EnvelopeSignal EnvelopeType = "signal"

	// Relay -> client.
	EnvelopeJoined   EnvelopeType = "joined"
	EnvelopePeerJoin EnvelopeType = "peer-joined"
	EnvelopePeerLeft EnvelopeType = "peer-left"
)

// Envelope is one signaling frame. The relay reads Type and Room only;
// Signal is opaque negotiation data forwarded verbatim to room peers.
type Envelope struct {
	Type   EnvelopeType    `json:"type"`
	Room   string          `json:"room,omitempty"`
	From   string          `json:"from,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}
