// Package relay implements the signaling relay: a WebSocket hub that tracks
// room membership and forwards opaque signal envelopes between connections
// sharing a room. The relay never interprets the signal payload.
package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/models"
	"github.com/kiko-beam/beamlink/internal/presence"
)

// Relay owns the room membership table. Rooms are created implicitly by the
// first join referencing them and deleted when their last member leaves.
type Relay struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]bool
	presence presence.Tracker
	log      zerolog.Logger
}

func New(tracker presence.Tracker, log zerolog.Logger) *Relay {
	if tracker == nil {
		tracker = presence.Noop{}
	}
	return &Relay{
		rooms:    make(map[string]map[*Client]bool),
		presence: tracker,
		log:      log.With().Str("component", "relay").Logger(),
	}
}

// RoomCount reports the number of live rooms.
func (r *Relay) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// PeerCount reports the number of members in a room, zero if the room does
// not exist.
func (r *Relay) PeerCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// join adds a client to a room. Re-issuing join replaces the prior
// membership: the client is removed from its old room first so a connection
// belongs to at most one room.
func (r *Relay) join(c *Client, room string) {
	r.mu.Lock()
	prev := c.room
	if prev != "" && prev != room {
		r.dropLocked(c, prev)
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		r.rooms[room] = members
		r.log.Info().Str("room", room).Msg("room created")
	}
	members[c] = true
	c.room = room
	r.mu.Unlock()

	if prev != "" && prev != room {
		r.presence.Remove(prev, c.id)
	}
	r.presence.Add(room, c.id)

	c.send(models.Envelope{Type: models.EnvelopeJoined, Room: room})
	r.notifyRoom(c, room, models.EnvelopePeerJoin)
	if prev != "" && prev != room {
		r.notifyRoom(c, prev, models.EnvelopePeerLeft)
	}
}

// forward fans a raw frame out to every other open member of the sender's
// room. Senders without a room are dropped by the caller.
func (r *Relay) forward(c *Client, raw []byte) {
	r.mu.RLock()
	members := r.rooms[c.room]
	peers := make([]*Client, 0, len(members))
	for peer := range members {
		if peer != c {
			peers = append(peers, peer)
		}
	}
	r.mu.RUnlock()

	for _, peer := range peers {
		peer.sendRaw(raw)
	}
}

// leave removes a client from its room, deleting the room when it empties.
func (r *Relay) leave(c *Client) {
	r.mu.Lock()
	room := c.room
	if room == "" {
		r.mu.Unlock()
		return
	}
	r.dropLocked(c, room)
	c.room = ""
	r.mu.Unlock()

	r.presence.Remove(room, c.id)
	r.notifyRoom(c, room, models.EnvelopePeerLeft)
}

// dropLocked removes c from the named room set. Callers hold r.mu.
func (r *Relay) dropLocked(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
		r.log.Info().Str("room", room).Msg("room removed")
	}
}

// notifyRoom announces a membership change to the other members of room.
func (r *Relay) notifyRoom(c *Client, room string, t models.EnvelopeType) {
	env := models.Envelope{Type: t, Room: room, From: c.id}
	r.mu.RLock()
	peers := make([]*Client, 0, len(r.rooms[room]))
	for peer := range r.rooms[room] {
		if peer != c {
			peers = append(peers, peer)
		}
	}
	r.mu.RUnlock()

	for _, peer := range peers {
		peer.send(env)
	}
}
