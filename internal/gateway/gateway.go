// Package gateway is the websocket front door to a realtime store
// backend. Each accepted connection gets its own backend connection, so
// armed disconnect mutations fire exactly when that socket drops.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"plaza/server/internal/gateway/proto"
	"plaza/server/internal/store"
	"plaza/server/logging"
	"plaza/server/logging/network"
)

const writeWait = 10 * time.Second

// ConnectFunc hands out a fresh backend connection per websocket client.
type ConnectFunc func() store.Store

// Gateway serves the store protocol over websockets plus a small HTTP
// surface for health and diagnostics.
type Gateway struct {
	connect   ConnectFunc
	logpub    logging.Publisher
	telemetry *telemetryCounters
	upgrader  websocket.Upgrader
}

func New(connect ConnectFunc, logpub logging.Publisher) *Gateway {
	if logpub == nil {
		logpub = logging.NopPublisher()
	}
	return &Gateway{
		connect:   connect,
		logpub:    logpub,
		telemetry: &telemetryCounters{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes for the gateway.
func (g *Gateway) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/diagnostics", g.handleDiagnostics).Methods(http.MethodGet)
	router.HandleFunc("/ws", g.handleWS)
	return router
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (g *Gateway) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Status     string            `json:"status"`
		ServerTime int64             `json:"serverTime"`
		Telemetry  telemetrySnapshot `json:"telemetry"`
	}{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		Telemetry:  g.telemetry.Snapshot(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &clientConn{
		id:      uuid.NewString(),
		gateway: g,
		ws:      ws,
		backend: g.connect(),
		watches: make(map[uint64]store.Subscription),
		hooks:   make(map[uint64]armedHook),
	}

	g.telemetry.connectionsTotal.Add(1)
	g.telemetry.connectionsActive.Add(1)
	network.ClientConnected(r.Context(), g.logpub, client.ref())

	client.readLoop()
}

// clientConn is one websocket client and its private backend connection.
type clientConn struct {
	id      string
	gateway *Gateway
	ws      *websocket.Conn
	backend store.Store

	writeMu sync.Mutex

	mu      sync.Mutex
	watches map[uint64]store.Subscription
	hooks   map[uint64]armedHook
}

type armedHook struct {
	path   string
	disarm store.Disarm
}

func (c *clientConn) ref() logging.EntityRef {
	return logging.EntityRef{ID: c.id, Kind: logging.EntityKindConnection}
}

func (c *clientConn) readLoop() {
	defer c.teardown()

	ctx := context.Background()
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.gateway.telemetry.framesReceived.Add(1)

		var frame proto.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case proto.TypeSet:
			c.backend.Set(ctx, frame.Path, frame.Value)
		case proto.TypeDelete:
			c.backend.Delete(ctx, frame.Path)
		case proto.TypeWatch:
			c.addWatch(frame.WatchID, frame.Path, frame.Limit)
		case proto.TypeUnwatch:
			c.removeWatch(frame.WatchID)
		case proto.TypeArm:
			c.armHook(frame.HookID, frame.Path)
		case proto.TypeDisarm:
			c.disarmHook(frame.HookID)
		}
	}
}

func (c *clientConn) addWatch(watchID uint64, path string, limit int) {
	fn := func(snap store.Snapshot) {
		c.sendSnapshot(watchID, path, snap)
	}
	sub, err := c.backend.WatchTail(path, limit, fn)
	if err != nil {
		return
	}

	c.mu.Lock()
	if existing, ok := c.watches[watchID]; ok {
		existing.Cancel()
	}
	c.watches[watchID] = sub
	c.mu.Unlock()
}

func (c *clientConn) removeWatch(watchID uint64) {
	c.mu.Lock()
	sub, ok := c.watches[watchID]
	delete(c.watches, watchID)
	c.mu.Unlock()
	if ok {
		sub.Cancel()
	}
}

func (c *clientConn) armHook(hookID uint64, path string) {
	disarm, err := c.backend.OnDisconnectDelete(path)
	if err != nil {
		return
	}
	c.mu.Lock()
	if existing, ok := c.hooks[hookID]; ok {
		existing.disarm()
	}
	c.hooks[hookID] = armedHook{path: path, disarm: disarm}
	c.mu.Unlock()
}

func (c *clientConn) disarmHook(hookID uint64) {
	c.mu.Lock()
	hook, ok := c.hooks[hookID]
	delete(c.hooks, hookID)
	c.mu.Unlock()
	if ok {
		hook.disarm()
	}
}

func (c *clientConn) sendSnapshot(watchID uint64, path string, snap store.Snapshot) {
	frame := proto.SnapshotFrame{
		Type:    proto.TypeSnapshot,
		WatchID: watchID,
		Path:    path,
		Entries: snap,
	}
	if frame.Entries == nil {
		frame.Entries = []store.Entry{}
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.gateway.telemetry.writeFailures.Add(1)
		network.WriteFailed(context.Background(), c.gateway.logpub, c.ref(), err)
		c.ws.Close()
		return
	}
	c.gateway.telemetry.RecordSnapshot(len(data))
}

// teardown runs once the socket is gone: remaining armed hooks count as
// fired because closing the backend connection executes them.
func (c *clientConn) teardown() {
	c.ws.Close()

	c.mu.Lock()
	pending := make([]armedHook, 0, len(c.hooks))
	for _, hook := range c.hooks {
		pending = append(pending, hook)
	}
	c.hooks = make(map[uint64]armedHook)
	c.mu.Unlock()

	c.backend.Close()

	g := c.gateway
	g.telemetry.connectionsActive.Add(-1)
	for _, hook := range pending {
		g.telemetry.hooksFired.Add(1)
		network.HookFired(context.Background(), g.logpub, c.ref(), network.HookFiredPayload{Path: hook.path})
	}
	network.ClientDisconnected(context.Background(), g.logpub, c.ref(), network.DisconnectedPayload{Reason: "socket_closed"})
}
