package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client is one relay-side WebSocket connection. It is owned by the relay
// for its lifetime; room is written only from the connection's read loop.
type Client struct {
	id   string
	room string
	conn *websocket.Conn
	out  chan []byte
	log  zerolog.Logger
}

// Serve upgrades the request and runs the connection until it closes. The
// connection starts with no room; membership is established by a join
// envelope.
func (r *Relay) Serve(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		out:  make(chan []byte, sendBuffer),
	}
	c.log = r.log.With().Str("peer_id", c.id).Logger()
	c.log.Info().Msg("peer connected")

	go c.writePump()
	go c.readPump(r)
}

func (c *Client) readPump(r *Relay) {
	defer func() {
		r.leave(c)
		c.conn.Close()
		c.log.Info().Msg("peer disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed frames are dropped; the connection stays open.
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch env.Type {
		case models.EnvelopeJoin:
			room := strings.TrimSpace(env.Room)
			if room == "" {
				c.log.Warn().Msg("dropping join with empty room")
				continue
			}
			r.join(c, room)
			c.log.Info().Str("room", room).Msg("peer joined room")

		case models.EnvelopeSignal:
			if c.room == "" {
				// A connection not yet in a room has nowhere to fan out to.
				c.log.Debug().Msg("dropping signal from roomless peer")
				continue
			}
			r.forward(c, raw)

		default:
			c.log.Warn().Str("type", string(env.Type)).Msg("dropping unknown frame type")
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Warn().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(env models.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal envelope")
		return
	}
	c.sendRaw(raw)
}

func (c *Client) sendRaw(raw []byte) {
	select {
	case c.out <- raw:
	default:
		c.log.Warn().Msg("send buffer full, dropping frame")
	}
}
