// Package signalclient is the client side of the relay protocol: it opens
// the signaling channel, announces room membership, and carries opaque
// signal payloads. Lost connections are redialed a bounded number of times
// before the channel is reported dead.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/models"
)

const (
	maxDialAttempts = 5
	initialBackoff  = 250 * time.Millisecond
	maxBackoff      = 10 * time.Second
)

var ErrClosed = errors.New("signaling channel closed")

type Client struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	room string
	done bool

	msgs chan models.Envelope
	dead chan error
}

// Dial opens the signaling channel, retrying with a doubling backoff.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Client, error) {
	c := &Client{
		url:  url,
		log:  log.With().Str("component", "signalclient").Logger(),
		msgs: make(chan models.Envelope, 32),
		dead: make(chan error, 1),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.readLoop(conn)
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxDialAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("signaling dial failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("dial signaling channel %s: %w", c.url, lastErr)
}

// Join announces (or moves) this connection's room membership.
func (c *Client) Join(room string) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	return c.write(models.Envelope{Type: models.EnvelopeJoin, Room: room})
}

// Signal sends an opaque payload to the other members of the joined room.
func (c *Client) Signal(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	return c.write(models.Envelope{Type: models.EnvelopeSignal, Signal: raw})
}

// Messages delivers frames from the relay until the channel dies.
func (c *Client) Messages() <-chan models.Envelope {
	return c.msgs
}

// Dead is signalled with a terminal error once reconnection is exhausted.
// It is closed without a value when the client is closed locally.
func (c *Client) Dead() <-chan error {
	return c.dead
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	close(c.dead)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) write(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || c.conn == nil {
		return ErrClosed
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write signaling frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(err)
			return
		}
		select {
		case c.msgs <- env:
		default:
			c.log.Warn().Msg("message buffer full, dropping frame")
		}
	}
}

// handleDisconnect redials and re-joins the current room, or reports the
// channel dead when retries are exhausted or the client was closed locally.
func (c *Client) handleDisconnect(cause error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	room := c.room
	c.mu.Unlock()

	c.log.Warn().Err(cause).Msg("signaling channel lost, reconnecting")

	conn, err := c.dial(context.Background())
	if err != nil {
		// Whoever flips done first owns the dead channel: Close closes it,
		// this path sends the terminal error.
		c.mu.Lock()
		if c.done {
			c.mu.Unlock()
			return
		}
		c.done = true
		c.mu.Unlock()
		c.dead <- fmt.Errorf("signaling channel lost: %w", cause)
		close(c.msgs)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if room != "" {
		if err := c.write(models.Envelope{Type: models.EnvelopeJoin, Room: room}); err != nil {
			c.log.Warn().Err(err).Msg("failed to re-join room after reconnect")
		}
	}
	go c.readLoop(conn)
}
