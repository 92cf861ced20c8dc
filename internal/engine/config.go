// Package engine is the presence and ephemeral-messaging core: it
// publishes the local participant's state to a realtime store at a
// bounded rate, derives the live peer map and message history from
// pushed snapshots, projects per-peer chat bubbles, integrates keyboard
// movement, and supervises all of it per room.
package engine

import "time"

// Config collects every tunable of the engine. Zero fields are replaced
// with defaults by normalized; none of the values are correctness
// requirements, only cadences and bounds.
type Config struct {
	// MaxMessages caps the visible message history per room.
	MaxMessages int
	// Cooldown is the minimum interval between own accepted messages.
	Cooldown time.Duration
	// PresenceTTL is the staleness threshold for peer records. It must
	// exceed PublishInterval by a wide margin.
	PresenceTTL time.Duration
	// PublishInterval is the presence rewrite cadence.
	PublishInterval time.Duration
	// TickRate is the movement integration frequency in Hz.
	TickRate int
	// MoveSpeed is the per-tick step in pixels along a held axis.
	MoveSpeed float64
	// BubbleDuration is how long a message stays visible as a bubble.
	BubbleDuration time.Duration
	// BubbleSweepInterval is the cadence of the bubble expiry pass.
	BubbleSweepInterval time.Duration
	// WarningDuration is how long the rate-limit warning stays visible.
	WarningDuration time.Duration
	// ViewportWidth/ViewportHeight bound avatar positions.
	ViewportWidth  float64
	ViewportHeight float64
	// Margin keeps avatars from rendering fully off-screen.
	Margin float64
}

// DefaultConfig returns the tunables the stock rooms run with.
func DefaultConfig() Config {
	return Config{
		MaxMessages:         30,
		Cooldown:            500 * time.Millisecond,
		PresenceTTL:         2 * time.Minute,
		PublishInterval:     100 * time.Millisecond,
		TickRate:            60,
		MoveSpeed:           4.0,
		BubbleDuration:      10 * time.Second,
		BubbleSweepInterval: time.Second,
		WarningDuration:     3 * time.Second,
		ViewportWidth:       800,
		ViewportHeight:      600,
		Margin:              40,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxMessages <= 0 {
		c.MaxMessages = def.MaxMessages
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = def.PresenceTTL
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = def.PublishInterval
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.MoveSpeed <= 0 {
		c.MoveSpeed = def.MoveSpeed
	}
	if c.BubbleDuration <= 0 {
		c.BubbleDuration = def.BubbleDuration
	}
	if c.BubbleSweepInterval <= 0 {
		c.BubbleSweepInterval = def.BubbleSweepInterval
	}
	if c.WarningDuration <= 0 {
		c.WarningDuration = def.WarningDuration
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = def.ViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = def.ViewportHeight
	}
	if c.Margin < 0 || c.Margin*2 >= c.ViewportWidth || c.Margin*2 >= c.ViewportHeight {
		c.Margin = def.Margin
	}
	return c
}
