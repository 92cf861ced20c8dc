// Package memstore is the in-process realtime tree. It is the backend
// for single-process gateways and for engine tests.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"plaza/server/internal/store"
	"plaza/server/logging"
)

func marshal(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		cloned := make([]byte, len(raw))
		copy(cloned, raw)
		return cloned, nil
	}
	return json.Marshal(value)
}

// Backend owns all collections and live watchers. Connections hand out
// by Connect share it.
type Backend struct {
	mu          sync.Mutex
	collections map[string]map[string][]byte
	watchers    map[string]map[uint64]*watcher
	nextWatch   uint64
	clock       logging.Clock
	ids         *store.IDGenerator
}

// New creates an empty backend. A nil clock falls back to wall time.
func New(clock logging.Clock) *Backend {
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &Backend{
		collections: make(map[string]map[string][]byte),
		watchers:    make(map[string]map[uint64]*watcher),
		clock:       clock,
		ids:         store.NewIDGenerator(time.Now().UnixNano()),
	}
}

// Connect returns a fresh connection. Each engine client holds its own
// so that armed disconnect mutations stay scoped to it.
func (b *Backend) Connect() *Conn {
	return &Conn{
		backend: b,
		armed:   make(map[uint64]string),
		subs:    make(map[*subscription]struct{}),
	}
}

// watcher delivers coalesced snapshots to one subscriber. The wake
// channel has capacity one: bursts of writes collapse into a single
// redelivery of the latest full snapshot, which is all the contract
// promises.
type watcher struct {
	collection string
	limit      int
	fn         store.SnapshotFunc
	wake       chan struct{}
	stop       chan struct{}
}

func (w *watcher) run(b *Backend) {
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			snap := b.snapshot(w.collection, w.limit)
			select {
			case <-w.stop:
				return
			default:
			}
			w.fn(snap)
		}
	}
}

func (w *watcher) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// snapshot copies a collection in key order, optionally trimmed to the
// last limit entries.
func (b *Backend) snapshot(collection string, limit int) store.Snapshot {
	b.mu.Lock()
	records := b.collections[collection]
	snap := make(store.Snapshot, 0, len(records))
	for key, data := range records {
		cloned := make([]byte, len(data))
		copy(cloned, data)
		snap = append(snap, store.Entry{Key: key, Data: cloned})
	}
	b.mu.Unlock()

	sort.Slice(snap, func(i, j int) bool { return snap[i].Key < snap[j].Key })
	return snap.Tail(limit)
}

func (b *Backend) set(collection, key string, data []byte) {
	b.mu.Lock()
	records, ok := b.collections[collection]
	if !ok {
		records = make(map[string][]byte)
		b.collections[collection] = records
	}
	records[key] = data
	watchers := b.watchersLocked(collection)
	b.mu.Unlock()

	for _, w := range watchers {
		w.notify()
	}
}

func (b *Backend) delete(collection, key string) {
	b.mu.Lock()
	records, ok := b.collections[collection]
	if ok {
		delete(records, key)
		if len(records) == 0 {
			delete(b.collections, collection)
		}
	}
	watchers := b.watchersLocked(collection)
	b.mu.Unlock()

	if !ok {
		return
	}
	for _, w := range watchers {
		w.notify()
	}
}

func (b *Backend) watchersLocked(collection string) []*watcher {
	set := b.watchers[collection]
	if len(set) == 0 {
		return nil
	}
	watchers := make([]*watcher, 0, len(set))
	for _, w := range set {
		watchers = append(watchers, w)
	}
	return watchers
}

func (b *Backend) watch(collection string, limit int, fn store.SnapshotFunc) (uint64, *watcher) {
	w := &watcher{
		collection: collection,
		limit:      limit,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	b.mu.Lock()
	b.nextWatch++
	id := b.nextWatch
	set, ok := b.watchers[collection]
	if !ok {
		set = make(map[uint64]*watcher)
		b.watchers[collection] = set
	}
	set[id] = w
	b.mu.Unlock()

	// Deliver the initial value before any change notifications so the
	// subscriber starts from the complete current state.
	fn(b.snapshot(collection, limit))
	go w.run(b)
	return id, w
}

func (b *Backend) unwatch(collection string, id uint64, w *watcher) {
	b.mu.Lock()
	if set, ok := b.watchers[collection]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(b.watchers, collection)
		}
	}
	b.mu.Unlock()
	close(w.stop)
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

type subscription struct {
	conn       *Conn
	collection string
	id         uint64
	watcher    *watcher
	once       sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.conn.backend.unwatch(s.collection, s.id, s.watcher)
		s.conn.mu.Lock()
		delete(s.conn.subs, s)
		s.conn.mu.Unlock()
	})
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
	c.backend.set(collection, key, data)
	return nil
}

func (c *Conn) Delete(ctx context.Context, path string) error {
	collection, key, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if err := c.live(); err != nil {
		return err
	}
	c.backend.delete(collection, key)
	return nil
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
	c.backend.set(path, id, data)
	return id, nil
}

func (c *Conn) Watch(path string, fn store.SnapshotFunc) (store.Subscription, error) {
	return c.watch(path, 0, fn)
}

func (c *Conn) WatchTail(path string, limit int, fn store.SnapshotFunc) (store.Subscription, error) {
	return c.watch(path, limit, fn)
}

func (c *Conn) watch(path string, limit int, fn store.SnapshotFunc) (store.Subscription, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	id, w := c.backend.watch(path, limit, fn)
	sub := &subscription{conn: c, collection: path, id: id, watcher: w}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub, nil
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

// Close fires every still-armed disconnect mutation and cancels the
// connection's subscriptions. Clients exiting cleanly disarm first.
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
	for _, path := range armed {
		collection, key, err := store.SplitPath(path)
		if err != nil {
			continue
		}
		c.backend.delete(collection, key)
	}
	return nil
}

func (c *Conn) live() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.ErrClosed
	}
	return nil
}
