// Package store defines the realtime tree every plaza client works
// against: last-write-wins records grouped into collections, push-based
// full-snapshot subscriptions, bounded tail queries, and per-connection
// disconnect hooks. Implementations live in memstore (in-process),
// redistore (Redis-backed), and wsstore (remote gateway).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Entry is one record inside a collection snapshot. Key is the record's
// name for presence collections and the store-assigned push id for
// message lists.
type Entry struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the full value of a collection, ordered by key ascending.
// Push ids sort in creation order, so message snapshots arrive in append
// order.
type Snapshot []Entry

// SnapshotFunc receives the complete current snapshot on subscribe and
// again after every change. Implementations deliver snapshots for one
// watcher sequentially.
type SnapshotFunc func(Snapshot)

// Subscription is the handle returned by Watch; cancelling it is the only
// teardown and is safe to call more than once.
type Subscription interface {
	Cancel()
}

// Disarm removes a previously armed disconnect mutation. Safe to call
// more than once.
type Disarm func()

// Store is a single client's connection to the shared tree. Writes are
// owner-exclusive or append-only, so no cross-client coordination is
// required beyond what the store itself does.
type Store interface {
	// Set writes the record at path, replacing any previous value.
	Set(ctx context.Context, path string, value any) error
	// Delete removes the record at path. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, path string) error
	// Push appends value to the collection at path under a fresh
	// sortable id and returns that id.
	Push(ctx context.Context, path string, value any) (string, error)
	// Watch subscribes to the full collection at path.
	Watch(path string, fn SnapshotFunc) (Subscription, error)
	// WatchTail subscribes to the last limit entries of the collection
	// at path, in key order.
	WatchTail(path string, limit int, fn SnapshotFunc) (Subscription, error)
	// OnDisconnectDelete arms "delete path" to run if this connection
	// drops without a clean Close of the hook.
	OnDisconnectDelete(path string) (Disarm, error)
	// Close tears down the connection. Armed disconnect mutations fire;
	// a client that wants a clean exit disarms them first.
	Close() error
}

var (
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("store: connection closed")
	// ErrBadPath is returned when a path has no collection/key split.
	ErrBadPath = errors.New("store: malformed path")
)

// SplitPath separates a record path into its collection and key, e.g.
// "rooms/plaza/users/ada" into ("rooms/plaza/users", "ada").
func SplitPath(path string) (collection, key string, err error) {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 || idx == len(path)-1 {
		return "", "", ErrBadPath
	}
	return path[:idx], path[idx+1:], nil
}

// UsersPath returns the presence collection for a room.
func UsersPath(room string) string {
	return "rooms/" + room + "/users"
}

// MessagesPath returns the message list collection for a room.
func MessagesPath(room string) string {
	return "rooms/" + room + "/messages"
}

// Tail returns the last limit entries of a snapshot. A non-positive
// limit returns the snapshot unchanged.
func (s Snapshot) Tail(limit int) Snapshot {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// Decode unmarshals the entry payload into out.
func (e Entry) Decode(out any) error {
	return json.Unmarshal(e.Data, out)
}
