// Package wsstore implements the store interface against a remote
// gateway. All writes are fire-and-forget over one websocket; results
// are observed through the pushed snapshots, never awaited.
package wsstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"plaza/server/internal/gateway/proto"
	"plaza/server/internal/store"
	"plaza/server/logging"
)

const writeWait = 10 * time.Second

// Conn is a remote store connection. Push ids are minted locally, the
// same way the in-process store mints them, so an append is just a set
// under a fresh sortable key.
type Conn struct {
	ws    *websocket.Conn
	clock logging.Clock
	ids   *store.IDGenerator

	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	nextWatch uint64
	nextHook  uint64
	watches   map[uint64]store.SnapshotFunc
}

// Dial connects to a gateway's /ws endpoint.
func Dial(ctx context.Context, url string, clock logging.Clock) (*Conn, error) {
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		ws:      ws,
		clock:   clock,
		ids:     store.NewIDGenerator(time.Now().UnixNano()),
		watches: make(map[uint64]store.SnapshotFunc),
	}
	go c.readLoop()
	return c, nil
}

// readLoop dispatches pushed snapshots to their watchers. Delivery is
// sequential per connection, which is stricter than the per-watcher
// ordering the contract requires.
func (c *Conn) readLoop() {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.markClosed()
			return
		}
		var frame proto.SnapshotFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Type != proto.TypeSnapshot {
			continue
		}

		c.mu.Lock()
		fn := c.watches[frame.WatchID]
		c.mu.Unlock()
		if fn != nil {
			fn(store.Snapshot(frame.Entries))
		}
	}
}

func (c *Conn) send(frame proto.ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return store.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	return c.send(proto.ClientFrame{Type: proto.TypeSet, Path: path, Value: data})
}

func (c *Conn) Delete(ctx context.Context, path string) error {
	if _, _, err := store.SplitPath(path); err != nil {
		return err
	}
	return c.send(proto.ClientFrame{Type: proto.TypeDelete, Path: path})
}

func (c *Conn) Push(ctx context.Context, path string, value any) (string, error) {
	id := c.ids.NextID(c.clock.Now())
	if err := c.Set(ctx, path+"/"+id, value); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Conn) Watch(path string, fn store.SnapshotFunc) (store.Subscription, error) {
	return c.WatchTail(path, 0, fn)
}

func (c *Conn) WatchTail(path string, limit int, fn store.SnapshotFunc) (store.Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	c.nextWatch++
	watchID := c.nextWatch
	c.watches[watchID] = fn
	c.mu.Unlock()

	if err := c.send(proto.ClientFrame{Type: proto.TypeWatch, Path: path, Limit: limit, WatchID: watchID}); err != nil {
		c.mu.Lock()
		delete(c.watches, watchID)
		c.mu.Unlock()
		return nil, err
	}
	return &subscription{conn: c, watchID: watchID}, nil
}

type subscription struct {
	conn    *Conn
	watchID uint64
	once    sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.watches, s.watchID)
		s.conn.mu.Unlock()
		s.conn.send(proto.ClientFrame{Type: proto.TypeUnwatch, WatchID: s.watchID})
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
	hookID := c.nextHook
	c.mu.Unlock()

	if err := c.send(proto.ClientFrame{Type: proto.TypeArm, Path: path, HookID: hookID}); err != nil {
		return nil, err
	}

	var once sync.Once
	disarm := func() {
		once.Do(func() {
			c.send(proto.ClientFrame{Type: proto.TypeDisarm, HookID: hookID})
		})
	}
	return disarm, nil
}

// Close drops the socket. Hooks still armed on the gateway fire there;
// clients exiting cleanly disarm first, exactly as with the in-process
// store.
func (c *Conn) Close() error {
	c.markClosed()
	return c.ws.Close()
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.watches = make(map[uint64]store.SnapshotFunc)
	c.mu.Unlock()
}
