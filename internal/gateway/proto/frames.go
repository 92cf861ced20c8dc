// Package proto defines the wire frames between a gateway and its
// remote store clients. All client operations are fire-and-forget; the
// only server-to-client traffic is full snapshots for watched
// collections. Watch and hook ids are client-assigned so both sides
// agree without a round trip.
package proto

import (
	"encoding/json"

	"plaza/server/internal/store"
)

const (
	TypeSet     = "set"
	TypeDelete  = "delete"
	TypeWatch   = "watch"
	TypeUnwatch = "unwatch"
	TypeArm     = "arm"
	TypeDisarm  = "disarm"

	TypeSnapshot = "snapshot"
)

// ClientFrame is any client-to-gateway operation.
type ClientFrame struct {
	Type    string          `json:"type"`
	Path    string          `json:"path,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	WatchID uint64          `json:"watchId,omitempty"`
	HookID  uint64          `json:"hookId,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// SnapshotFrame carries the full current value of a watched collection.
type SnapshotFrame struct {
	Type    string        `json:"type"`
	WatchID uint64        `json:"watchId"`
	Path    string        `json:"path"`
	Entries []store.Entry `json:"entries"`
}
