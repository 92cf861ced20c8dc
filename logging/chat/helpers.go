package chat

import (
	"context"

	"plaza/server/logging"
)

const (
	// EventMessageSubmitted is emitted when a message is accepted and
	// written to the room's list.
	EventMessageSubmitted logging.EventType = "chat.message_submitted"
	// EventMessageRateLimited is emitted when a submission is denied by
	// the cooldown.
	EventMessageRateLimited logging.EventType = "chat.message_rate_limited"
	// EventMessageRejected is emitted for empty or whitespace-only input.
	EventMessageRejected logging.EventType = "chat.message_rejected"
)

// SubmittedPayload captures accepted-message metadata; the text itself is
// not logged.
type SubmittedPayload struct {
	MessageID string `json:"messageId"`
	Length    int    `json:"length"`
	Timestamp int64  `json:"timestamp"`
}

// RateLimitedPayload captures how far inside the cooldown the attempt was.
type RateLimitedPayload struct {
	SinceLastMs int64 `json:"sinceLastMs"`
	CooldownMs  int64 `json:"cooldownMs"`
}

// Submitted publishes an accepted-message event.
func Submitted(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload SubmittedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageSubmitted,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryChat,
		Payload:  payload,
	})
}

// RateLimited publishes a denied-submission event.
func RateLimited(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload RateLimitedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageRateLimited,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryChat,
		Payload:  payload,
	})
}

// Rejected publishes an empty-input rejection event.
func Rejected(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageRejected,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryChat,
	})
}
