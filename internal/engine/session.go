package engine

import (
	"context"
	"sync"
	"time"

	"plaza/server/internal/store"
	"plaza/server/logging"
	"plaza/server/logging/lifecycle"
)

// RoomSession owns the engine lifecycle for one participant. It is a two
// state machine, inactive or active in exactly one room: entering a room
// resets the join anchor and all derived state, activates the presence
// publisher, presence subscriber and message channel for that room, and
// guarantees the previous room's subscriptions and publishers are torn
// down first. A room switch is indistinguishable from a fresh entry.
type RoomSession struct {
	cfg      Config
	st       store.Store
	clock    logging.Clock
	logpub   logging.Publisher
	username string

	movement   *MovementController
	publisher  *PresencePublisher
	subscriber *PresenceSubscriber
	channel    *MessageChannel
	bubbles    *BubbleScheduler

	mu       sync.Mutex
	room     string
	moveStop chan struct{}
}

func NewRoomSession(st store.Store, clock logging.Clock, logpub logging.Publisher, cfg Config, username, color string) *RoomSession {
	cfg = cfg.normalized()
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	if logpub == nil {
		logpub = logging.NopPublisher()
	}

	movement := NewMovementController(cfg, cfg.ViewportWidth/2, cfg.ViewportHeight/2)
	bubbles := NewBubbleScheduler(clock, cfg, username)
	channel := NewMessageChannel(st, clock, logpub, cfg, username)
	channel.SetOnChange(bubbles.Recompute)

	return &RoomSession{
		cfg:        cfg,
		st:         st,
		clock:      clock,
		logpub:     logpub,
		username:   username,
		movement:   movement,
		publisher:  NewPresencePublisher(st, clock, cfg, username, color, movement.Position),
		subscriber: NewPresenceSubscriber(st, clock, logpub, cfg),
		channel:    channel,
		bubbles:    bubbles,
	}
}

// Enter activates the session for a room, tearing down the previous room
// first when switching. Re-entering the current room is a no-op.
func (s *RoomSession) Enter(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room == "" || room == s.room {
		return nil
	}
	if s.room != "" {
		s.deactivateLocked("room_change")
	}

	anchor := s.clock.Now()
	s.bubbles.Reset(anchor)
	s.room = room

	// Derived state is already clear here: a reader observing the session
	// between this point and the first pushed snapshot sees empty peers,
	// history and bubbles.
	if err := s.subscriber.Activate(room); err != nil {
		s.room = ""
		return err
	}
	if err := s.channel.Activate(room); err != nil {
		s.subscriber.Deactivate()
		s.room = ""
		return err
	}
	if err := s.publisher.Activate(room); err != nil {
		s.channel.Deactivate()
		s.subscriber.Deactivate()
		s.room = ""
		return err
	}
	s.bubbles.Start()
	s.startMovementLocked()

	x, y := s.movement.Position()
	lifecycle.RoomEntered(context.Background(), s.logpub, room,
		logging.EntityRef{ID: s.username, Kind: logging.EntityKindPeer},
		lifecycle.RoomEnteredPayload{JoinAnchor: anchor.UnixMilli(), SpawnX: x, SpawnY: y})
	return nil
}

// Leave deactivates everything. Safe to call when already inactive.
func (s *RoomSession) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return
	}
	s.deactivateLocked("leave")
	s.room = ""
}

// deactivateLocked tears down all activations for the current room. Each
// step is idempotent, so a partially failed activation still deactivates
// safely.
func (s *RoomSession) deactivateLocked(reason string) {
	s.stopMovementLocked()
	s.channel.Deactivate()
	s.publisher.Deactivate()
	s.subscriber.Deactivate()
	s.bubbles.Stop()

	lifecycle.RoomLeft(context.Background(), s.logpub, s.room,
		logging.EntityRef{ID: s.username, Kind: logging.EntityKindPeer},
		lifecycle.RoomLeftPayload{Reason: reason})
}

func (s *RoomSession) startMovementLocked() {
	if s.moveStop != nil {
		return
	}
	stop := make(chan struct{})
	s.moveStop = stop
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.movement.Step()
			}
		}
	}()
}

func (s *RoomSession) stopMovementLocked() {
	if s.moveStop == nil {
		return
	}
	close(s.moveStop)
	s.moveStop = nil
}

// Room returns the active room id, empty while inactive.
func (s *RoomSession) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Peers returns the live peer map for the active room.
func (s *RoomSession) Peers() map[string]Peer {
	return s.subscriber.Peers()
}

// History returns the ordered message history for the active room.
func (s *RoomSession) History() []Message {
	return s.channel.History()
}

// Bubbles returns the current per-author bubble map.
func (s *RoomSession) Bubbles() map[string]Bubble {
	return s.bubbles.Bubbles()
}

// Warning returns the active rate-limit warning, if any.
func (s *RoomSession) Warning() string {
	return s.channel.Warning()
}

// Submit sends a chat message to the active room.
func (s *RoomSession) Submit(text string) {
	s.channel.Submit(text)
}

// KeyDown forwards a movement key press.
func (s *RoomSession) KeyDown(d Direction) {
	s.movement.KeyDown(d)
}

// KeyUp forwards a movement key release.
func (s *RoomSession) KeyUp(d Direction) {
	s.movement.KeyUp(d)
}

// SetTyping toggles text-entry focus for movement suppression.
func (s *RoomSession) SetTyping(typing bool) {
	s.movement.SetTyping(typing)
}

// Position returns the local avatar position.
func (s *RoomSession) Position() (float64, float64) {
	return s.movement.Position()
}
