package lifecycle

import (
	"context"

	"plaza/server/logging"
)

const (
	// EventRoomEntered is emitted when the local participant enters a room.
	EventRoomEntered logging.EventType = "lifecycle.room_entered"
	// EventRoomLeft is emitted when the local participant leaves a room.
	EventRoomLeft logging.EventType = "lifecycle.room_left"
	// EventPeerExpired is emitted when a peer is dropped from the live map
	// because its record aged past the presence TTL.
	EventPeerExpired logging.EventType = "lifecycle.peer_expired"
)

// RoomEnteredPayload captures spawn metadata for the local participant.
type RoomEnteredPayload struct {
	JoinAnchor int64   `json:"joinAnchor"`
	SpawnX     float64 `json:"spawnX"`
	SpawnY     float64 `json:"spawnY"`
}

// RoomLeftPayload captures why the room was deactivated.
type RoomLeftPayload struct {
	Reason string `json:"reason"`
}

// PeerExpiredPayload captures how stale the dropped record was.
type PeerExpiredPayload struct {
	LastSeen int64 `json:"lastSeen"`
	AgeMs    int64 `json:"ageMs"`
}

// RoomEntered publishes a room entry event.
func RoomEntered(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload RoomEnteredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoomEntered,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPresence,
		Payload:  payload,
	})
}

// RoomLeft publishes a room exit event.
func RoomLeft(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload RoomLeftPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoomLeft,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPresence,
		Payload:  payload,
	})
}

// PeerExpired publishes a TTL eviction event.
func PeerExpired(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload PeerExpiredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerExpired,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryPresence,
		Payload:  payload,
	})
}
