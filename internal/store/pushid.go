package store

import (
	"math/rand"
	"sync"
	"time"
)

// Push ids are 20 characters: 8 encoding the creation time in
// milliseconds, 12 of random entropy. The alphabet is ordered by ASCII
// value, so lexicographic order equals creation order. Ids generated in
// the same millisecond increment the previous entropy instead of
// redrawing it, which keeps them strictly increasing.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// IDGenerator mints sortable push ids. The zero value is not usable;
// call NewIDGenerator.
type IDGenerator struct {
	mu       sync.Mutex
	rand     *rand.Rand
	lastMs   int64
	lastRand [12]int
}

func NewIDGenerator(seed int64) *IDGenerator {
	return &IDGenerator{rand: rand.New(rand.NewSource(seed))}
}

// NextID returns a fresh push id for the given creation time.
func (g *IDGenerator) NextID(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms < g.lastMs {
		// Clock went backwards; reuse the last millisecond so ids stay
		// ordered.
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.incrementLocked()
	} else {
		g.lastMs = ms
		for i := range g.lastRand {
			g.lastRand[i] = g.rand.Intn(64)
		}
	}

	var buf [20]byte
	rest := ms
	for i := 7; i >= 0; i-- {
		buf[i] = pushAlphabet[rest%64]
		rest /= 64
	}
	for i, v := range g.lastRand {
		buf[8+i] = pushAlphabet[v]
	}
	return string(buf[:])
}

// incrementLocked advances the entropy suffix by one with carry.
func (g *IDGenerator) incrementLocked() {
	for i := len(g.lastRand) - 1; i >= 0; i-- {
		if g.lastRand[i] < 63 {
			g.lastRand[i]++
			return
		}
		g.lastRand[i] = 0
	}
}
