package relay_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/models"
	"github.com/kiko-beam/beamlink/internal/relay"
)

func newTestRelay(t *testing.T) (*relay.Relay, string) {
	t.Helper()
	r := relay.New(nil, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(r.Serve))
	t.Cleanup(srv.Close)
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialPeer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	if err := conn.WriteJSON(models.Envelope{Type: models.EnvelopeJoin, Room: room}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	ack := readEnvelope(t, conn, models.EnvelopeJoined)
	if ack.Room != room {
		t.Fatalf("joined ack for room %q, want %q", ack.Room, room)
	}
}

func sendSignal(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	err := conn.WriteJSON(models.Envelope{
		Type:   models.EnvelopeSignal,
		Signal: json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("send signal: %v", err)
	}
}

// readEnvelope reads frames until one of the wanted type arrives, skipping
// membership notifications.
func readEnvelope(t *testing.T, conn *websocket.Conn, want models.EnvelopeType) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %q frame: %v", want, err)
		}
		if env.Type == want {
			return env
		}
	}
}

// expectNoSignal asserts no signal frame reaches conn within the window.
func expectNoSignal(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return // deadline hit with no signal delivered
		}
		if env.Type == models.EnvelopeSignal {
			t.Fatalf("unexpected signal delivered: %s", env.Signal)
		}
	}
}

func TestSignalFanOutExcludesSender(t *testing.T) {
	_, url := newTestRelay(t)

	alice := dialPeer(t, url)
	bob := dialPeer(t, url)
	carol := dialPeer(t, url)
	joinRoom(t, alice, "room-r")
	joinRoom(t, bob, "room-r")
	joinRoom(t, carol, "room-r")

	sendSignal(t, alice, `{"sdp":"offer"}`)

	for _, peer := range []*websocket.Conn{bob, carol} {
		env := readEnvelope(t, peer, models.EnvelopeSignal)
		if string(env.Signal) != `{"sdp":"offer"}` {
			t.Fatalf("signal payload = %s, want verbatim forward", env.Signal)
		}
	}
	expectNoSignal(t, alice)
}

func TestRoomIsolation(t *testing.T) {
	_, url := newTestRelay(t)

	a := dialPeer(t, url)
	b := dialPeer(t, url)
	joinRoom(t, a, "room-a")
	joinRoom(t, b, "room-b")

	sendSignal(t, a, `{"n":1}`)
	expectNoSignal(t, b)
}

func TestSignalBeforeJoinDropped(t *testing.T) {
	_, url := newTestRelay(t)

	loner := dialPeer(t, url)
	member := dialPeer(t, url)
	joinRoom(t, member, "room-x")

	sendSignal(t, loner, `{"early":true}`)
	expectNoSignal(t, member)
}

func TestRejoinReplacesRoom(t *testing.T) {
	_, url := newTestRelay(t)

	mover := dialPeer(t, url)
	inA := dialPeer(t, url)
	inB := dialPeer(t, url)
	joinRoom(t, inA, "room-a")
	joinRoom(t, inB, "room-b")

	joinRoom(t, mover, "room-a")
	joinRoom(t, mover, "room-b")

	sendSignal(t, mover, `{"where":"b"}`)

	env := readEnvelope(t, inB, models.EnvelopeSignal)
	if string(env.Signal) != `{"where":"b"}` {
		t.Fatalf("room B member got %s", env.Signal)
	}
	expectNoSignal(t, inA)
}

func TestMembershipCleanup(t *testing.T) {
	r, url := newTestRelay(t)

	a := dialPeer(t, url)
	b := dialPeer(t, url)
	joinRoom(t, a, "room-gone")
	joinRoom(t, b, "room-gone")

	a.Close()
	b.Close()

	deadline := time.Now().Add(2 * time.Second)
	for r.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("room table not cleaned up, %d rooms remain", r.RoomCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A later join starts an empty membership set.
	c := dialPeer(t, url)
	joinRoom(t, c, "room-gone")
	if n := r.PeerCount("room-gone"); n != 1 {
		t.Fatalf("recreated room has %d peers, want 1", n)
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	_, url := newTestRelay(t)

	a := dialPeer(t, url)
	b := dialPeer(t, url)
	joinRoom(t, a, "room-m")
	joinRoom(t, b, "room-m")

	if err := a.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("send malformed: %v", err)
	}
	if err := a.WriteJSON(models.Envelope{Type: "bogus"}); err != nil {
		t.Fatalf("send unknown type: %v", err)
	}

	// The connection must survive and keep forwarding.
	sendSignal(t, a, `{"still":"alive"}`)
	env := readEnvelope(t, b, models.EnvelopeSignal)
	if string(env.Signal) != `{"still":"alive"}` {
		t.Fatalf("signal after malformed frames = %s", env.Signal)
	}
}

func TestJoinWithEmptyRoomIgnored(t *testing.T) {
	r, url := newTestRelay(t)

	a := dialPeer(t, url)
	if err := a.WriteJSON(models.Envelope{Type: models.EnvelopeJoin, Room: "  "}); err != nil {
		t.Fatalf("send join: %v", err)
	}

	// No room may be created and no ack sent.
	a.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var env models.Envelope
	if err := a.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected frame %q after malformed join", env.Type)
	}
	if n := r.RoomCount(); n != 0 {
		t.Fatalf("room count = %d after empty join, want 0", n)
	}
}
