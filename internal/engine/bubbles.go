package engine

import (
	"sync"
	"time"

	"plaza/server/logging"
)

// BubbleScheduler projects the message history into a per-author
// "currently speaking" bubble. It recomputes wholesale on every history
// change and sweeps expired bubbles on its own cadence so bubbles fade
// even when no new message arrives.
type BubbleScheduler struct {
	clock       logging.Clock
	duration    time.Duration
	sweepEvery  time.Duration
	localAuthor string

	mu           sync.Mutex
	joinAnchorMs int64
	bubbles      map[string]Bubble
	nextPriority uint64
	stop         chan struct{}
}

func NewBubbleScheduler(clock logging.Clock, cfg Config, localAuthor string) *BubbleScheduler {
	cfg = cfg.normalized()
	return &BubbleScheduler{
		clock:       clock,
		duration:    cfg.BubbleDuration,
		sweepEvery:  cfg.BubbleSweepInterval,
		localAuthor: localAuthor,
		bubbles:     make(map[string]Bubble),
	}
}

// Reset clears all bubbles and records a new join anchor. Own messages
// created at or before the anchor never resurface as bubbles after a
// rejoin; peers' messages are exempt. The priority counter is not reset,
// it stays strictly increasing for the process lifetime.
func (b *BubbleScheduler) Reset(anchor time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joinAnchorMs = anchor.UnixMilli()
	b.bubbles = make(map[string]Bubble)
}

// Recompute derives the bubble map from an ascending-timestamp history.
// Each author's slot is overwritten on every qualifying match, so the
// final slot holds their most recent qualifying message, carrying a
// priority from the latest placement.
func (b *BubbleScheduler) Recompute(messages []Message) {
	nowMs := b.clock.Now().UnixMilli()
	durationMs := b.duration.Milliseconds()

	b.mu.Lock()
	defer b.mu.Unlock()

	fresh := make(map[string]Bubble)
	for _, msg := range messages {
		if nowMs-msg.Timestamp >= durationMs {
			continue
		}
		if msg.Username == b.localAuthor && msg.Timestamp <= b.joinAnchorMs {
			continue
		}
		b.nextPriority++
		fresh[msg.Username] = Bubble{
			Username:  msg.Username,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Priority:  b.nextPriority,
		}
	}
	b.bubbles = fresh
}

// Sweep drops bubbles whose message has aged past the visible lifetime.
func (b *BubbleScheduler) Sweep() {
	nowMs := b.clock.Now().UnixMilli()
	durationMs := b.duration.Milliseconds()

	b.mu.Lock()
	defer b.mu.Unlock()
	for author, bubble := range b.bubbles {
		if nowMs-bubble.Timestamp >= durationMs {
			delete(b.bubbles, author)
		}
	}
}

// Start launches the periodic expiry pass. Idempotent.
func (b *BubbleScheduler) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	stop := make(chan struct{})
	b.stop = stop
	go b.run(stop)
}

// Stop halts the expiry pass and clears the bubble map. Idempotent.
func (b *BubbleScheduler) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop == nil {
		return
	}
	close(b.stop)
	b.stop = nil
	b.bubbles = make(map[string]Bubble)
}

func (b *BubbleScheduler) run(stop chan struct{}) {
	ticker := time.NewTicker(b.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// Bubbles returns a copy of the current bubble map keyed by author.
func (b *BubbleScheduler) Bubbles() map[string]Bubble {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make(map[string]Bubble, len(b.bubbles))
	for k, v := range b.bubbles {
		copied[k] = v
	}
	return copied
}
