package engine

import "sync"

// Direction is one of the four held movement keys.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection validates a direction string received from input
// handling.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(value) {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return Direction(value), true
	default:
		return "", false
	}
}

// MovementController turns held direction keys into a smoothly updated
// local position. Integration is pure per tick: a fixed step per held
// axis, no momentum, clamped so the avatar never leaves the viewport
// minus its margin.
type MovementController struct {
	mu     sync.Mutex
	held   map[Direction]struct{}
	typing bool

	x, y  float64
	speed float64
	minX  float64
	maxX  float64
	minY  float64
	maxY  float64
}

func NewMovementController(cfg Config, spawnX, spawnY float64) *MovementController {
	cfg = cfg.normalized()
	m := &MovementController{
		held:  make(map[Direction]struct{}),
		speed: cfg.MoveSpeed,
		minX:  cfg.Margin,
		maxX:  cfg.ViewportWidth - cfg.Margin,
		minY:  cfg.Margin,
		maxY:  cfg.ViewportHeight - cfg.Margin,
	}
	m.x = clamp(spawnX, m.minX, m.maxX)
	m.y = clamp(spawnY, m.minY, m.maxY)
	return m
}

// KeyDown records a held key. Suppressed while a text-entry field has
// focus so typing never moves the avatar.
func (m *MovementController) KeyDown(d Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typing {
		return
	}
	m.held[d] = struct{}{}
}

// KeyUp releases a held key.
func (m *MovementController) KeyUp(d Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typing {
		return
	}
	delete(m.held, d)
}

// SetTyping toggles text-entry focus. Entering focus releases all held
// keys so an avatar cannot keep drifting while its owner types.
func (m *MovementController) SetTyping(typing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = typing
	if typing {
		m.held = make(map[Direction]struct{})
	}
}

// Step integrates one tick and returns the resulting position.
func (m *MovementController) Step() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[DirectionLeft]; ok {
		m.x -= m.speed
	}
	if _, ok := m.held[DirectionRight]; ok {
		m.x += m.speed
	}
	if _, ok := m.held[DirectionUp]; ok {
		m.y -= m.speed
	}
	if _, ok := m.held[DirectionDown]; ok {
		m.y += m.speed
	}

	m.x = clamp(m.x, m.minX, m.maxX)
	m.y = clamp(m.y, m.minY, m.maxY)
	return m.x, m.y
}

// Position returns the current position without integrating.
func (m *MovementController) Position() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.x, m.y
}

// SetPosition teleports the avatar, clamped to the viewport.
func (m *MovementController) SetPosition(x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x = clamp(x, m.minX, m.maxX)
	m.y = clamp(y, m.minY, m.maxY)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
