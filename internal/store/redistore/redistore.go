// Package redistore is the Redis-backed realtime tree. Collections live
// in hashes and change notifications ride pub/sub, so several gateway
// processes can serve one logical room set. Snapshot semantics match
// memstore: every notification triggers a full re-read of the
// collection, never a delta.
package redistore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"plaza/server/internal/store"
	"plaza/server/logging"
)

const (
	hashPrefix    = "plaza:data:"
	channelPrefix = "plaza:notify:"
)

// Backend wraps one Redis client shared by all connections.
type Backend struct {
	client *redis.Client
	clock  logging.Clock
	ids    *store.IDGenerator
}

func New(client *redis.Client, clock logging.Clock) *Backend {
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &Backend{
		client: client,
		clock:  clock,
		ids:    store.NewIDGenerator(time.Now().UnixNano()),
	}
}

// Ping verifies the Redis connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Connect returns a fresh connection scoped to its own armed hooks and
// subscriptions.
func (b *Backend) Connect() *Conn {
	return &Conn{
		backend: b,
		armed:   make(map[uint64]string),
		subs:    make(map[*subscription]struct{}),
	}
}

func (b *Backend) snapshot(ctx context.Context, collection string, limit int) (store.Snapshot, error) {
	values, err := b.client.HGetAll(ctx, hashPrefix+collection).Result()
	if err != nil {
		return nil, err
	}
	snap := make(store.Snapshot, 0, len(values))
	for key, data := range values {
		snap = append(snap, store.Entry{Key: key, Data: []byte(data)})
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].Key < snap[j].Key })
	return snap.Tail(limit), nil
}

func (b *Backend) set(ctx context.Context, collection, key string, data []byte) error {
	if err := b.client.HSet(ctx, hashPrefix+collection, key, data).Err(); err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+collection, key).Err()
}

func (b *Backend) delete(ctx context.Context, collection, key string) error {
	if err := b.client.HDel(ctx, hashPrefix+collection, key).Err(); err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+collection, key).Err()
}

// Conn is one client's connection to the backend.
type Conn struct {
	backend *Backend

	mu       sync.Mutex
	closed   bool
	nextHook uint64
	armed    map[uint64]string
	subs     map[*subscription]struct{}
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	collection, key, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if err := c.live(); err != nil {
		return err
	}
	return c.backend.set(ctx, collection, key, data)
}

func (c *Conn) Delete(ctx context.Context, path string) error {
	collection, key, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if err := c.live(); err != nil {
		return err
	}
	return c.backend.delete(ctx, collection, key)
}

func (c *Conn) Push(ctx context.Context, path string, value any) (string, error) {
	data, err := marshal(value)
	if err != nil {
		return "", err
	}
	if err := c.live(); err != nil {
		return "", err
	}
	id := c.backend.ids.NextID(c.backend.clock.Now())
	if err := c.backend.set(ctx, path, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Conn) Watch(path string, fn store.SnapshotFunc) (store.Subscription, error) {
	return c.WatchTail(path, 0, fn)
}

func (c *Conn) WatchTail(path string, limit int, fn store.SnapshotFunc) (store.Subscription, error) {
	if err := c.live(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := c.backend.client.Subscribe(ctx, channelPrefix+path)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, err
	}

	sub := &subscription{conn: c, pubsub: pubsub, cancel: cancel}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	// Initial snapshot after the subscription is live, so no change can
	// slip between the read and the first notification.
	if snap, err := c.backend.snapshot(ctx, path, limit); err == nil {
		fn(snap)
	}

	go func() {
		for range pubsub.Channel() {
			snap, err := c.backend.snapshot(ctx, path, limit)
			if err != nil {
				continue
			}
			fn(snap)
		}
	}()
	return sub, nil
}

type subscription struct {
	conn   *Conn
	pubsub *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.pubsub.Close()
		s.conn.mu.Lock()
		delete(s.conn.subs, s)
		s.conn.mu.Unlock()
	})
}

func (c *Conn) OnDisconnectDelete(path string) (store.Disarm, error) {
	if _, _, err := store.SplitPath(path); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	c.nextHook++
	id := c.nextHook
	c.armed[id] = path
	c.mu.Unlock()

	var once sync.Once
	disarm := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.armed, id)
			c.mu.Unlock()
		})
	}
	return disarm, nil
}

// Close fires still-armed disconnect mutations and drops subscriptions.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	armed := make([]string, 0, len(c.armed))
	for _, path := range c.armed {
		armed = append(armed, path)
	}
	c.armed = map[uint64]string{}
	subs := make([]*subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	ctx := context.Background()
	var firstErr error
	for _, path := range armed {
		collection, key, err := store.SplitPath(path)
		if err != nil {
			continue
		}
		if err := c.backend.delete(ctx, collection, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Conn) live() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return nil
}
