package engine

import (
	"context"
	"sync"
	"time"

	"plaza/server/internal/store"
	"plaza/server/logging"
	"plaza/server/logging/lifecycle"
)

// PresencePublisher keeps the store's record for the local peer fresh and
// guarantees removal on exit. Activation arms the store's disconnect
// hook, writes the record immediately, then rewrites it on a fixed
// interval. Individual write failures are not retried; the next tick
// re-attempts with fresh data.
type PresencePublisher struct {
	st       store.Store
	clock    logging.Clock
	interval time.Duration
	username string
	color    string
	position func() (float64, float64)

	mu     sync.Mutex
	path   string
	disarm store.Disarm
	stop   chan struct{}
}

func NewPresencePublisher(st store.Store, clock logging.Clock, cfg Config, username, color string, position func() (float64, float64)) *PresencePublisher {
	cfg = cfg.normalized()
	return &PresencePublisher{
		st:       st,
		clock:    clock,
		interval: cfg.PublishInterval,
		username: username,
		color:    color,
		position: position,
	}
}

// Activate begins publishing for a room. The disconnect hook is armed
// before the first write so an early crash still cleans up.
func (p *PresencePublisher) Activate(room string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return nil
	}

	p.path = store.UsersPath(room) + "/" + p.username
	disarm, err := p.st.OnDisconnectDelete(p.path)
	if err != nil {
		return err
	}
	p.disarm = disarm

	p.publishOnce(p.clock.Now())

	stop := make(chan struct{})
	p.stop = stop
	go p.run(stop)
	return nil
}

// Deactivate stops the interval, disarms the disconnect hook, then
// explicitly deletes the record, in that order. Idempotent.
func (p *PresencePublisher) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
	if p.disarm != nil {
		p.disarm()
		p.disarm = nil
	}
	p.st.Delete(context.Background(), p.path)
	p.path = ""
}

func (p *PresencePublisher) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.stop != nil {
				p.publishOnce(p.clock.Now())
			}
			p.mu.Unlock()
		}
	}
}

// publishOnce writes the current record. Errors are deliberately dropped:
// the publisher self-heals on the next tick.
func (p *PresencePublisher) publishOnce(now time.Time) {
	x, y := p.position()
	record := Peer{
		Username: p.username,
		X:        x,
		Y:        y,
		Color:    p.color,
		LastSeen: now.UnixMilli(),
	}
	p.st.Set(context.Background(), p.path, record)
}

// PresenceSubscriber maintains the live peer map for a room. Every
// pushed snapshot fully replaces the previous state after TTL filtering;
// no diffing, because the store delivers complete subtree values.
type PresenceSubscriber struct {
	st     store.Store
	clock  logging.Clock
	logpub logging.Publisher
	ttl    time.Duration

	mu    sync.Mutex
	room  string
	sub   store.Subscription
	peers map[string]Peer
}

func NewPresenceSubscriber(st store.Store, clock logging.Clock, logpub logging.Publisher, cfg Config) *PresenceSubscriber {
	cfg = cfg.normalized()
	return &PresenceSubscriber{
		st:     st,
		clock:  clock,
		logpub: logpub,
		ttl:    cfg.PresenceTTL,
		peers:  make(map[string]Peer),
	}
}

func (s *PresenceSubscriber) Activate(room string) error {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	s.room = room
	s.peers = make(map[string]Peer)
	s.mu.Unlock()

	sub, err := s.st.Watch(store.UsersPath(room), func(snap store.Snapshot) {
		s.apply(room, snap)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.room != room {
		// Deactivated while subscribing; drop the stray subscription.
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *PresenceSubscriber) Deactivate() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.room = ""
	s.peers = make(map[string]Peer)
	s.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// apply filters a snapshot by TTL and replaces the exposed peer map.
// Readers drop stale entries independently of writer-side cleanup; the
// two mechanisms are redundant on purpose.
func (s *PresenceSubscriber) apply(room string, snap store.Snapshot) {
	nowMs := s.clock.Now().UnixMilli()
	ttlMs := s.ttl.Milliseconds()

	fresh := make(map[string]Peer, len(snap))
	for _, entry := range snap {
		var peer Peer
		if err := entry.Decode(&peer); err != nil {
			continue
		}
		if nowMs-peer.LastSeen >= ttlMs {
			lifecycle.PeerExpired(context.Background(), s.logpub, room,
				logging.EntityRef{ID: entry.Key, Kind: logging.EntityKindPeer},
				lifecycle.PeerExpiredPayload{LastSeen: peer.LastSeen, AgeMs: nowMs - peer.LastSeen})
			continue
		}
		fresh[entry.Key] = peer
	}

	s.mu.Lock()
	if s.room == room {
		s.peers = fresh
	}
	s.mu.Unlock()
}

// Peers returns a copy of the live peer map.
func (s *PresenceSubscriber) Peers() map[string]Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]Peer, len(s.peers))
	for k, v := range s.peers {
		copied[k] = v
	}
	return copied
}
