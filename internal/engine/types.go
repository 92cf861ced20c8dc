package engine

// Peer is one participant's presence record as stored under
// rooms/{room}/users/{username}. The owning client is the sole writer;
// everyone else only reads. Timestamps are wall-clock milliseconds.
type Peer struct {
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	LastSeen int64   `json:"lastSeen"`
}

// Message is one immutable entry of a room's append-only list. ID is the
// store-assigned push id and is not part of the stored payload.
type Message struct {
	ID        string `json:"-"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Bubble is the derived "currently speaking" projection for one peer.
// Priority increases with every placement, so the most recently surfaced
// speaker renders above older bubbles when they overlap.
type Bubble struct {
	Username  string
	Text      string
	Timestamp int64
	Priority  uint64
}

// RateLimitWarning is the transient notice shown when a submission is
// denied by the cooldown.
const RateLimitWarning = "Slow down! You're typing too fast"
