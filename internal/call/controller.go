// Package call owns the client-side call lifecycle: one logical call at a
// time, sequenced from contact resolution through signaling join and
// call-room session setup, with every failure path unwinding back to idle.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiko-beam/beamlink/internal/contacts"
	"github.com/kiko-beam/beamlink/internal/dailyco"
	"github.com/kiko-beam/beamlink/internal/models"
)

var (
	ErrCallInProgress = errors.New("call already in progress")
	ErrNoActiveCall   = errors.New("no active call")
)

// Signaler is the slice of the signaling client the controller needs. Dead
// delivers a terminal error when the channel is lost for good and is closed
// without a value on local Close.
type Signaler interface {
	Join(room string) error
	Dead() <-chan error
	Close() error
}

// RoomProvisioner creates or resolves rooms on the call-room service.
type RoomProvisioner interface {
	CreateOrJoinRoom(ctx context.Context, name string) (dailyco.Room, error)
}

// Options wire the controller's collaborators.
type Options struct {
	Contacts   *contacts.Store
	Rooms      RoomProvisioner
	NewSession dailyco.SessionFactory
	// OpenSignaling lazily opens the signaling channel on first call.
	OpenSignaling func(ctx context.Context) (Signaler, error)
	DisplayName   string
	Timeout       time.Duration // unconnected calls give up after this
	Logger        zerolog.Logger
}

// Controller is the call session state machine. All fields are owned by the
// controller; UI and command layers go through its operations.
type Controller struct {
	mu          sync.Mutex
	state       State
	roomID      string
	contactName string
	audioMuted  bool
	videoMuted  bool
	session     dailyco.Session
	sig         Signaler
	callStart   time.Time
	timer       *time.Timer

	opts   Options
	events chan Event
	log    zerolog.Logger
}

func NewController(opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.DisplayName == "" {
		opts.DisplayName = "Beam User"
	}
	return &Controller{
		state:  StateIdle,
		opts:   opts,
		events: make(chan Event, 16),
		log:    opts.Logger.With().Str("component", "call").Logger(),
	}
}

// Events delivers controller notifications. The channel is buffered; slow
// consumers lose events rather than blocking the state machine.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target reports the current call's room id and contact name.
func (c *Controller) Target() (room, contact string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.contactName
}

// Call resolves a free-text contact query and initiates a call to the
// contact's room. Resolution failures surface as errors without touching
// call state.
func (c *Controller) Call(ctx context.Context, query string) error {
	if c.opts.Contacts == nil {
		return contacts.ErrNotFound
	}
	contact, err := c.opts.Contacts.Resolve(query)
	if err != nil {
		return err
	}
	return c.start(ctx, contact.ID, contact.Name)
}

// CallRoom initiates a call directly to a room id, the path taken by the
// mobile entry flow where the link already carries the room.
func (c *Controller) CallRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return contacts.ErrEmptyName
	}
	return c.start(ctx, roomID, "")
}

func (c *Controller) start(ctx context.Context, roomID, contactName string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	c.state = StateInitiating
	c.roomID = roomID
	c.contactName = contactName
	c.audioMuted = false
	c.videoMuted = false
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, State: StateInitiating})
	c.log.Info().Str("room", roomID).Str("contact", contactName).Msg("initiating call")

	go c.connect(ctx)
	return nil
}

// connect runs the handshake: signaling channel, join envelope, call-room
// provisioning, session join, then waits for the joined event.
func (c *Controller) connect(ctx context.Context) {
	sig, err := c.signaler(ctx)
	if err != nil {
		c.fail(fmt.Errorf("open signaling channel: %w", err))
		return
	}

	c.mu.Lock()
	room := c.roomID
	if c.state != StateInitiating {
		// Hang-up won the race before the handshake got anywhere.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := sig.Join(room); err != nil {
		c.fail(fmt.Errorf("join signaling room: %w", err))
		return
	}

	provisioned, err := c.opts.Rooms.CreateOrJoinRoom(ctx, room)
	if err != nil {
		c.fail(err)
		return
	}

	session := c.opts.NewSession()
	if err := session.Join(ctx, dailyco.JoinOptions{
		URL:         provisioned.URL,
		DisplayName: c.opts.DisplayName,
	}); err != nil {
		session.Destroy()
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.state != StateInitiating {
		c.mu.Unlock()
		session.Leave()
		session.Destroy()
		return
	}
	c.session = session
	c.state = StateConnecting
	c.timer = time.AfterFunc(c.opts.Timeout, c.onTimeout)
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, State: StateConnecting})
	go c.watch(session)
}

// watch consumes session events until the session's channel closes.
func (c *Controller) watch(session dailyco.Session) {
	for ev := range session.Events() {
		switch ev.Kind {
		case dailyco.EventJoined:
			c.onJoined()
		case dailyco.EventLeft:
			c.finish(nil, true)
		case dailyco.EventError:
			c.fail(ev.Err)
		case dailyco.EventParticipantJoined:
			c.emit(Event{Kind: EventPeerJoined, Peer: ev.Participant})
		case dailyco.EventParticipantLeft:
			c.emit(Event{Kind: EventPeerLeft, Peer: ev.Participant})
		}
	}
}

func (c *Controller) onJoined() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.callStart = time.Now()
	c.stopTimerLocked()
	name := c.contactName
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, State: StateActive})
	c.emit(Event{Kind: EventConnected})
	c.log.Info().Str("contact", name).Msg("call connected")
	c.recordHistory(name, models.CallStarted, 0)
}

// stopTimerLocked cancels the pending connect timer. Caller holds c.mu.
func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// onTimeout unwinds a call that never connected. The state check happens
// inside finishIf's lock so a joined event racing the timer wins.
func (c *Controller) onTimeout() {
	c.finishIf(errors.New("call timed out waiting for the room to connect"), false, StateConnecting)
}

// End hangs up. Calling it with no call in progress is a no-op.
func (c *Controller) End() {
	c.finish(nil, false)
}

// ToggleAudio flips the local audio mute flag. No-op without a session. The
// session call happens outside the lock.
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	session := c.session
	if session == nil {
		muted := c.audioMuted
		c.mu.Unlock()
		return muted
	}
	c.audioMuted = !c.audioMuted
	muted := c.audioMuted
	c.mu.Unlock()

	session.SetLocalAudio(!muted)
	return muted
}

// ToggleVideo flips the local video mute flag. No-op without a session.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	session := c.session
	if session == nil {
		muted := c.videoMuted
		c.mu.Unlock()
		return muted
	}
	c.videoMuted = !c.videoMuted
	muted := c.videoMuted
	c.mu.Unlock()

	session.SetLocalVideo(!muted)
	return muted
}

// fail routes any connection-phase or session error through the shared
// teardown with a categorized failure event.
func (c *Controller) fail(err error) {
	c.finish(err, false)
}

// stateAny disables finishIf's state precondition.
const stateAny State = -1

// finish is the single teardown path: local hang-up, remote leave, errors,
// and timeout all converge here. Safe to call repeatedly; only the first
// call per session does work.
func (c *Controller) finish(cause error, remoteLeft bool) {
	c.finishIf(cause, remoteLeft, stateAny)
}

// finishIf tears down only when the call is still in the required state,
// checked under the same lock that performs the Ending transition.
func (c *Controller) finishIf(cause error, remoteLeft bool, only State) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		// Already idle or mid-teardown: idempotent no-op.
		c.mu.Unlock()
		return
	}
	if only != stateAny && c.state != only {
		c.mu.Unlock()
		return
	}
	prevState := c.state
	c.state = StateEnding
	c.stopTimerLocked()
	session := c.session
	c.session = nil
	name := c.contactName
	started := c.callStart
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, State: StateEnding})

	if session != nil {
		if !remoteLeft {
			if err := session.Leave(); err != nil {
				c.log.Warn().Err(err).Msg("error leaving call room")
			}
		}
		session.Destroy()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.roomID = ""
	c.contactName = ""
	c.audioMuted = false
	c.videoMuted = false
	c.callStart = time.Time{}
	c.mu.Unlock()

	c.emit(Event{Kind: EventStateChanged, State: StateIdle})

	switch {
	case cause != nil:
		category := Classify(cause)
		c.log.Warn().Err(cause).Str("category", string(category)).Msg("call failed")
		c.emit(Event{Kind: EventFailed, Category: category, Err: cause})
		c.recordHistory(name, models.CallFailed, 0)
	default:
		var duration float64
		if prevState == StateActive && !started.IsZero() {
			duration = time.Since(started).Seconds()
		}
		c.log.Info().Str("contact", name).Msg("call ended")
		c.emit(Event{Kind: EventEnded})
		if prevState == StateActive {
			c.recordHistory(name, models.CallEnded, duration)
		}
	}
}

// signaler returns the open signaling channel, dialing it on first use.
func (c *Controller) signaler(ctx context.Context) (Signaler, error) {
	c.mu.Lock()
	sig := c.sig
	c.mu.Unlock()
	if sig != nil {
		return sig, nil
	}

	sig, err := c.opts.OpenSignaling(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sig = sig
	c.mu.Unlock()
	go c.watchSignaler(sig)
	return sig, nil
}

// watchSignaler fails the in-flight call when the signaling channel dies.
// The cached channel is dropped either way so the next call redials.
func (c *Controller) watchSignaler(sig Signaler) {
	err, ok := <-sig.Dead()

	c.mu.Lock()
	if c.sig == sig {
		c.sig = nil
	}
	c.mu.Unlock()

	if !ok || err == nil {
		// Closed locally; nothing to report.
		return
	}
	c.fail(err)
}

// Close releases the signaling channel. Any in-progress call is ended first.
func (c *Controller) Close() {
	c.End()
	c.mu.Lock()
	sig := c.sig
	c.sig = nil
	c.mu.Unlock()
	if sig != nil {
		sig.Close()
	}
}

func (c *Controller) recordHistory(name string, action models.HistoryAction, duration float64) {
	if c.opts.Contacts == nil || name == "" {
		return
	}
	if err := c.opts.Contacts.AppendHistory(name, action, duration); err != nil {
		c.log.Warn().Err(err).Str("contact", name).Msg("failed to record call history")
	}
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping")
	}
}
