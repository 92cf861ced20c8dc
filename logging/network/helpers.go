package network

import (
	"context"

	"plaza/server/logging"
)

const (
	// EventClientConnected is emitted when a gateway accepts a websocket.
	EventClientConnected logging.EventType = "network.client_connected"
	// EventClientDisconnected is emitted when a gateway connection ends.
	EventClientDisconnected logging.EventType = "network.client_disconnected"
	// EventHookFired is emitted when an armed disconnect mutation runs.
	EventHookFired logging.EventType = "network.disconnect_hook_fired"
	// EventWriteFailed is emitted when a snapshot could not be delivered.
	EventWriteFailed logging.EventType = "network.write_failed"
)

// DisconnectedPayload captures why the connection ended.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// HookFiredPayload captures the path a fired hook deleted.
type HookFiredPayload struct {
	Path string `json:"path"`
}

// ClientConnected publishes a connection event.
func ClientConnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientConnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// ClientDisconnected publishes a disconnection event.
func ClientDisconnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload DisconnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientDisconnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// HookFired publishes a disconnect-hook event.
func HookFired(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload HookFiredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHookFired,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// WriteFailed publishes a failed snapshot delivery event.
func WriteFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, err error) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventWriteFailed,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
	}
	if err != nil {
		event = event.WithExtra("error", err.Error())
	}
	pub.Publish(ctx, event)
}
