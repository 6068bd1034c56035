package signalclient_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/models"
	"github.com/kiko-beam/beamlink/internal/relay"
	"github.com/kiko-beam/beamlink/internal/signalclient"
)

func startRelay(t *testing.T) string {
	t.Helper()
	r := relay.New(nil, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(r.Serve))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *signalclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := signalclient.Dial(ctx, url, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func awaitEnvelope(t *testing.T, c *signalclient.Client, want models.EnvelopeType) models.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-c.Messages():
			if !ok {
				t.Fatal("message channel closed while waiting")
			}
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q envelope", want)
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	if err := a.Join("room-1"); err != nil {
		t.Fatalf("a join: %v", err)
	}
	awaitEnvelope(t, a, models.EnvelopeJoined)
	if err := b.Join("room-1"); err != nil {
		t.Fatalf("b join: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeJoined)

	payload := map[string]string{"sdp": "v=0 fake offer"}
	if err := a.Signal(payload); err != nil {
		t.Fatalf("signal: %v", err)
	}

	env := awaitEnvelope(t, b, models.EnvelopeSignal)
	var got map[string]string
	if err := json.Unmarshal(env.Signal, &got); err != nil {
		t.Fatalf("unmarshal relayed signal: %v", err)
	}
	if got["sdp"] != "v=0 fake offer" {
		t.Fatalf("relayed payload = %v", got)
	}

	// The sender must not hear its own signal.
	select {
	case env := <-a.Messages():
		if env.Type == models.EnvelopeSignal {
			t.Fatalf("sender received its own signal: %+v", env)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestJoinMovesRooms(t *testing.T) {
	url := startRelay(t)
	a := dial(t, url)
	b := dial(t, url)

	if err := a.Join("room-1"); err != nil {
		t.Fatalf("a join: %v", err)
	}
	awaitEnvelope(t, a, models.EnvelopeJoined)
	if err := b.Join("room-2"); err != nil {
		t.Fatalf("b join room-2: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeJoined)

	// Nothing crosses rooms.
	if err := a.Signal("ping"); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case env := <-b.Messages():
		if env.Type == models.EnvelopeSignal {
			t.Fatalf("signal crossed rooms: %+v", env)
		}
	case <-time.After(200 * time.Millisecond):
	}

	// After b moves into room-1, signals flow.
	if err := b.Join("room-1"); err != nil {
		t.Fatalf("b re-join: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeJoined)
	if err := a.Signal("hello"); err != nil {
		t.Fatalf("signal after move: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeSignal)
}

// connTrackingListener records accepted connections so tests can sever
// hijacked WebSocket connections, which http.Server.Close does not reach.
type connTrackingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *connTrackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *connTrackingListener) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		conn.Close()
	}
	l.conns = nil
}

// serveRelay runs a relay on addr ("127.0.0.1:0" for any port) and returns
// it with its address and a stopper that also severs open connections.
func serveRelay(t *testing.T, addr string) (*relay.Relay, string, func()) {
	t.Helper()

	var raw net.Listener
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		raw, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		// The port of a just-stopped server can take a moment to free up.
		if time.Now().After(deadline) {
			t.Fatalf("listen on %s: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	l := &connTrackingListener{Listener: raw}
	r := relay.New(nil, zerolog.Nop())
	srv := &http.Server{Handler: http.HandlerFunc(r.Serve)}
	go srv.Serve(l)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			srv.Close()
			l.closeAll()
		})
	}
	t.Cleanup(stop)
	return r, raw.Addr().String(), stop
}

func TestReconnectRejoinsRoom(t *testing.T) {
	_, addr, stop := serveRelay(t, "127.0.0.1:0")
	url := "ws://" + addr

	c := dial(t, url)
	if err := c.Join("room-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	awaitEnvelope(t, c, models.EnvelopeJoined)

	stop()
	r2, _, _ := serveRelay(t, addr)

	// The client redials on its own and re-announces its room.
	deadline := time.Now().Add(8 * time.Second)
	for r2.PeerCount("room-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client did not re-join its room after reconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Signaling works end to end across the reconnect.
	b := dial(t, url)
	if err := b.Join("room-1"); err != nil {
		t.Fatalf("second peer join: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeJoined)
	if err := c.Signal(map[string]string{"sdp": "renegotiate"}); err != nil {
		t.Fatalf("signal after reconnect: %v", err)
	}
	awaitEnvelope(t, b, models.EnvelopeSignal)
}

func TestExhaustedReconnectReportsDead(t *testing.T) {
	_, addr, stop := serveRelay(t, "127.0.0.1:0")
	c := dial(t, "ws://"+addr)
	if err := c.Join("room-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	awaitEnvelope(t, c, models.EnvelopeJoined)

	stop() // no relay comes back

	select {
	case err, ok := <-c.Dead():
		if !ok || err == nil {
			t.Fatalf("dead channel delivered %v (ok=%v), want a terminal error", err, ok)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("no terminal error after reconnect attempts exhausted")
	}

	// The message channel closes once the channel is declared dead.
	drain := time.After(time.Second)
	for {
		select {
		case _, ok := <-c.Messages():
			if !ok {
				return
			}
		case <-drain:
			t.Fatal("message channel not closed after terminal error")
		}
	}
}

func TestWriteAfterCloseReturnsErrClosed(t *testing.T) {
	url := startRelay(t)
	c := dial(t, url)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Join("room-1"); err != signalclient.ErrClosed {
		t.Fatalf("join after close err = %v, want ErrClosed", err)
	}
	if err := c.Signal("x"); err != signalclient.ErrClosed {
		t.Fatalf("signal after close err = %v, want ErrClosed", err)
	}
	if _, ok := <-c.Dead(); ok {
		t.Fatal("dead channel should close without a value on local Close")
	}
}
