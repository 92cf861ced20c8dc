package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"plaza/server/internal/store"
	"plaza/server/logging"
	chatlog "plaza/server/logging/chat"
)

// MessageChannel maintains the ordered message history for a room and
// accepts outgoing submissions. History is materialized wholesale from
// every pushed snapshot of the room's bounded message tail; there is no
// optimistic local echo, a submitted message appears only once its write
// round-trips through the store.
type MessageChannel struct {
	st      store.Store
	clock   logging.Clock
	logpub  logging.Publisher
	limiter *RateLimiter

	author      string
	maxMessages int
	warningTTL  time.Duration
	onChange    func([]Message)

	mu           sync.Mutex
	room         string
	sub          store.Subscription
	history      []Message
	warning      string
	warningUntil time.Time
}

func NewMessageChannel(st store.Store, clock logging.Clock, logpub logging.Publisher, cfg Config, author string) *MessageChannel {
	cfg = cfg.normalized()
	return &MessageChannel{
		st:          st,
		clock:       clock,
		logpub:      logpub,
		limiter:     NewRateLimiter(cfg.Cooldown),
		author:      author,
		maxMessages: cfg.MaxMessages,
		warningTTL:  cfg.WarningDuration,
	}
}

// SetOnChange registers a callback invoked with the fresh history after
// every applied snapshot. Wire it before Activate.
func (c *MessageChannel) SetOnChange(fn func([]Message)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *MessageChannel) Activate(room string) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.room = room
	c.history = nil
	c.warning = ""
	c.limiter.Reset()
	c.mu.Unlock()

	sub, err := c.st.WatchTail(store.MessagesPath(room), c.maxMessages, func(snap store.Snapshot) {
		c.apply(room, snap)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.room != room {
		c.mu.Unlock()
		sub.Cancel()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()
	return nil
}

func (c *MessageChannel) Deactivate() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.room = ""
	c.history = nil
	c.warning = ""
	c.limiter.Reset()
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// apply materializes a snapshot into the exposed history, ordered by
// client timestamp ascending with the store id as tiebreak.
func (c *MessageChannel) apply(room string, snap store.Snapshot) {
	messages := make([]Message, 0, len(snap))
	for _, entry := range snap {
		var msg Message
		if err := entry.Decode(&msg); err != nil {
			continue
		}
		msg.ID = entry.Key
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp != messages[j].Timestamp {
			return messages[i].Timestamp < messages[j].Timestamp
		}
		return messages[i].ID < messages[j].ID
	})

	c.mu.Lock()
	if c.room != room {
		c.mu.Unlock()
		return
	}
	c.history = messages
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(messages)
	}
}

// Submit appends a message to the room's list. Empty or whitespace-only
// input is a silent no-op. A rate-limited attempt surfaces a transient
// warning and is never retried.
func (c *MessageChannel) Submit(text string) {
	c.mu.Lock()
	room := c.room
	active := c.sub != nil
	c.mu.Unlock()
	if !active {
		return
	}

	actor := logging.EntityRef{ID: c.author, Kind: logging.EntityKindPeer}

	if strings.TrimSpace(text) == "" {
		chatlog.Rejected(context.Background(), c.logpub, room, actor)
		return
	}

	now := c.clock.Now()
	last := c.limiter.Last()
	if !c.limiter.TryConsume(now) {
		c.mu.Lock()
		c.warning = RateLimitWarning
		c.warningUntil = now.Add(c.warningTTL)
		c.mu.Unlock()
		chatlog.RateLimited(context.Background(), c.logpub, room, actor, chatlog.RateLimitedPayload{
			SinceLastMs: now.Sub(last).Milliseconds(),
			CooldownMs:  c.limiter.cooldown.Milliseconds(),
		})
		return
	}

	c.mu.Lock()
	c.warning = ""
	c.mu.Unlock()

	msg := Message{Username: c.author, Text: text, Timestamp: now.UnixMilli()}
	id, err := c.st.Push(context.Background(), store.MessagesPath(room), msg)
	if err != nil {
		// Fire-and-forget: the history simply never shows the message.
		return
	}
	chatlog.Submitted(context.Background(), c.logpub, room, actor, chatlog.SubmittedPayload{
		MessageID: id,
		Length:    len(text),
		Timestamp: msg.Timestamp,
	})
}

// History returns a copy of the ordered message history.
func (c *MessageChannel) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]Message, len(c.history))
	copy(copied, c.history)
	return copied
}

// Warning returns the active rate-limit warning, empty once it has aged
// out.
func (c *MessageChannel) Warning() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warning == "" || !c.clock.Now().Before(c.warningUntil) {
		return ""
	}
	return c.warning
}
