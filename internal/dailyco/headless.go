package dailyco

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HeadlessSession is a Session without media: it verifies the room is
// reachable and then tracks only lifecycle state. Used by the CLI caller,
// where audio and video stay with the browser client. Mute calls are
// recorded but have nothing to mute.
type HeadlessSession struct {
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	joined bool
	closed bool
	events chan Event
}

func NewHeadlessSession(log zerolog.Logger) *HeadlessSession {
	return &HeadlessSession{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "headless-session").Logger(),
		events: make(chan Event, 8),
	}
}

func (s *HeadlessSession) Join(ctx context.Context, opts JoinOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("network error reaching call room: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("permission denied for call room (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("call room returned status %d", resp.StatusCode)
	}

	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
	s.emit(Event{Kind: EventJoined})
	return nil
}

func (s *HeadlessSession) Events() <-chan Event {
	return s.events
}

func (s *HeadlessSession) SetLocalAudio(enabled bool) {
	s.log.Debug().Bool("enabled", enabled).Msg("local audio toggled")
}

func (s *HeadlessSession) SetLocalVideo(enabled bool) {
	s.log.Debug().Bool("enabled", enabled).Msg("local video toggled")
}

func (s *HeadlessSession) Leave() error {
	s.mu.Lock()
	wasJoined := s.joined
	s.joined = false
	s.mu.Unlock()
	if wasJoined {
		s.emit(Event{Kind: EventLeft})
	}
	return nil
}

func (s *HeadlessSession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *HeadlessSession) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
