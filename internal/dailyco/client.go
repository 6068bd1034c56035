// Package dailyco talks to the external call-room service. The service owns
// the actual media transport; this client only provisions rooms over its
// REST API and defines the session port the call controller drives.
package dailyco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/config"
)

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
	roomLifetime = 7 * 24 * time.Hour
)

// Room is a provisioned call room.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Client struct {
	apiURL string
	apiKey string
	domain string
	client *http.Client
	log    zerolog.Logger
}

func New(cfg config.DailyConfig, log zerolog.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		domain: cfg.Domain,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("component", "dailyco").Logger(),
	}
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type roomProperties struct {
	EnablePrejoinUI bool  `json:"enable_prejoin_ui"`
	EnableChat      bool  `json:"enable_chat"`
	EnableKnocking  bool  `json:"enable_knocking"`
	StartVideoOff   bool  `json:"start_video_off"`
	StartAudioOff   bool  `json:"start_audio_off"`
	Exp             int64 `json:"exp"`
}

type apiError struct {
	Error string `json:"error"`
	Info  string `json:"info"`
}

// CreateOrJoinRoom provisions a room by name, resolving "already exists"
// responses to the existing room. Transient failures are retried a bounded
// number of times with a doubling backoff.
func (c *Client) CreateOrJoinRoom(ctx context.Context, name string) (Room, error) {
	var lastErr error
	backoff := retryBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		room, retryable, err := c.createRoom(ctx, name)
		if err == nil {
			return room, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("room", name).Msg("room creation failed, retrying")

		select {
		case <-ctx.Done():
			return Room{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return Room{}, fmt.Errorf("create room %q: %w", name, lastErr)
}

// RoomURL builds the call-room URL for a room name on the configured domain.
func (c *Client) RoomURL(name string) string {
	return fmt.Sprintf("https://%s/%s", c.domain, name)
}

func (c *Client) createRoom(ctx context.Context, name string) (Room, bool, error) {
	body, err := json.Marshal(createRoomRequest{
		Name:    name,
		Privacy: "public",
		Properties: roomProperties{
			EnableChat: true,
			Exp:        time.Now().Add(roomLifetime).Unix(),
		},
	})
	if err != nil {
		return Room{}, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return Room{}, false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Room{}, true, fmt.Errorf("post to call-room api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Room{}, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var room Room
		if err := json.Unmarshal(raw, &room); err != nil {
			return Room{}, false, fmt.Errorf("unmarshal response: %w", err)
		}
		return room, false, nil

	case resp.StatusCode == http.StatusConflict || isAlreadyExists(raw):
		// The room was created previously; joining it is the point.
		return Room{Name: name, URL: c.RoomURL(name)}, false, nil

	case resp.StatusCode >= 500:
		return Room{}, true, fmt.Errorf("call-room api returned status %d: %s", resp.StatusCode, string(raw))

	default:
		return Room{}, false, fmt.Errorf("call-room api returned status %d: %s", resp.StatusCode, string(raw))
	}
}

func isAlreadyExists(raw []byte) bool {
	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}
	return strings.Contains(e.Info, "already exists")
}
