package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"plaza/server/internal/gateway/wsstore"
	"plaza/server/internal/store"
	"plaza/server/internal/store/memstore"
)

func newTestGateway(t *testing.T) (*httptest.Server, *memstore.Backend) {
	t.Helper()
	backend := memstore.New(nil)
	g := New(func() store.Store { return backend.Connect() }, nil)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv, backend
}

func dialTestGateway(t *testing.T, srv *httptest.Server) *wsstore.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wsstore.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []store.Snapshot
}

func (r *snapshotRecorder) record(snap store.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
}

func (r *snapshotRecorder) latest() store.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type record struct {
	Name string `json:"name"`
}

func TestSetRoundTripsBetweenClients(t *testing.T) {
	srv, _ := newTestGateway(t)

	writer := dialTestGateway(t, srv)
	defer writer.Close()
	reader := dialTestGateway(t, srv)
	defer reader.Close()

	rec := &snapshotRecorder{}
	sub, err := reader.Watch("rooms/plaza/users", rec.record)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()
	waitFor(t, func() bool { return rec.latest() != nil }, "initial snapshot")

	if err := writer.Set(context.Background(), "rooms/plaza/users/ada", record{Name: "ada"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitFor(t, func() bool { return len(rec.latest()) == 1 }, "write to reach the other client")

	var got record
	if err := rec.latest()[0].Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Name != "ada" {
		t.Fatalf("value = %+v", got)
	}
}

func TestPushRespectsTailLimit(t *testing.T) {
	srv, _ := newTestGateway(t)

	client := dialTestGateway(t, srv)
	defer client.Close()

	rec := &snapshotRecorder{}
	sub, err := client.WatchTail("rooms/plaza/messages", 3, rec.record)
	if err != nil {
		t.Fatalf("WatchTail: %v", err)
	}
	defer sub.Cancel()

	ctx := context.Background()
	var last string
	for i := 0; i < 6; i++ {
		id, err := client.Push(ctx, "rooms/plaza/messages", record{Name: "m"})
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		last = id
	}

	waitFor(t, func() bool {
		snap := rec.latest()
		return len(snap) == 3 && snap[2].Key == last
	}, "bounded tail to settle on the newest entries")
}

func TestSocketDropFiresArmedDelete(t *testing.T) {
	srv, _ := newTestGateway(t)

	writer := dialTestGateway(t, srv)
	ctx := context.Background()
	if err := writer.Set(ctx, "rooms/plaza/users/ada", record{Name: "ada"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := writer.OnDisconnectDelete("rooms/plaza/users/ada"); err != nil {
		t.Fatalf("OnDisconnectDelete: %v", err)
	}

	reader := dialTestGateway(t, srv)
	defer reader.Close()
	rec := &snapshotRecorder{}
	sub, err := reader.Watch("rooms/plaza/users", rec.record)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()
	waitFor(t, func() bool { return len(rec.latest()) == 1 }, "record to appear")

	// Drop the socket without disarming. The gateway closes the backend
	// connection, which fires the armed delete.
	writer.Close()
	waitFor(t, func() bool { return len(rec.latest()) == 0 }, "armed delete to fire")
}

func TestDisarmedHookDoesNotFire(t *testing.T) {
	srv, _ := newTestGateway(t)

	writer := dialTestGateway(t, srv)
	ctx := context.Background()
	if err := writer.Set(ctx, "rooms/plaza/users/ada", record{Name: "ada"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	disarm, err := writer.OnDisconnectDelete("rooms/plaza/users/ada")
	if err != nil {
		t.Fatalf("OnDisconnectDelete: %v", err)
	}

	reader := dialTestGateway(t, srv)
	defer reader.Close()
	rec := &snapshotRecorder{}
	sub, err := reader.Watch("rooms/plaza/users", rec.record)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()
	waitFor(t, func() bool { return len(rec.latest()) == 1 }, "record to appear")

	disarm()
	// Give the disarm frame time to land before dropping the socket.
	time.Sleep(100 * time.Millisecond)
	writer.Close()

	time.Sleep(100 * time.Millisecond)
	if len(rec.latest()) != 1 {
		t.Fatal("record must survive close after a clean disarm")
	}
}

func TestUnwatchStopsDelivery(t *testing.T) {
	srv, _ := newTestGateway(t)

	writer := dialTestGateway(t, srv)
	defer writer.Close()
	reader := dialTestGateway(t, srv)
	defer reader.Close()

	rec := &snapshotRecorder{}
	sub, err := reader.Watch("rooms/plaza/users", rec.record)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitFor(t, func() bool { return rec.latest() != nil }, "initial snapshot")
	sub.Cancel()
	time.Sleep(100 * time.Millisecond)

	rec.mu.Lock()
	before := len(rec.snaps)
	rec.mu.Unlock()

	writer.Set(context.Background(), "rooms/plaza/users/ada", record{Name: "ada"})
	time.Sleep(100 * time.Millisecond)

	rec.mu.Lock()
	after := len(rec.snaps)
	rec.mu.Unlock()
	if after != before {
		t.Fatalf("snapshots kept arriving after unwatch: %d then %d", before, after)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestDiagnosticsCountsConnections(t *testing.T) {
	srv, _ := newTestGateway(t)

	client := dialTestGateway(t, srv)
	defer client.Close()
	if err := client.Set(context.Background(), "rooms/plaza/users/ada", record{Name: "ada"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var payload struct {
		Status    string `json:"status"`
		Telemetry struct {
			ConnectionsTotal  int64 `json:"connectionsTotal"`
			ConnectionsActive int64 `json:"connectionsActive"`
			FramesReceived    int64 `json:"framesReceived"`
		} `json:"telemetry"`
	}
	waitFor(t, func() bool {
		resp, err := http.Get(srv.URL + "/diagnostics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return false
		}
		return payload.Telemetry.FramesReceived >= 1
	}, "diagnostics to report the processed frame")

	if payload.Status != "ok" {
		t.Fatalf("status = %q", payload.Status)
	}
	if payload.Telemetry.ConnectionsTotal < 1 || payload.Telemetry.ConnectionsActive < 1 {
		t.Fatalf("telemetry = %+v", payload.Telemetry)
	}
}
