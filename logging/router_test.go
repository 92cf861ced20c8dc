package logging_test

import (
	"context"
	"testing"
	"time"

	"plaza/server/logging"
	"plaza/server/logging/sinks"
)

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

func TestRouterForwardsToSinks(t *testing.T) {
	sink := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "memory", Sink: sink},
	})

	router.Publish(context.Background(), logging.Event{
		Type:     "chat_message_submitted",
		Room:     "plaza",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryChat,
		Actor:    logging.EntityRef{ID: "ada", Kind: logging.EntityKindPeer},
	})

	waitFor(t, func() bool { return len(sink.Events()) == 1 }, "event to reach the sink")
	got := sink.Events()[0]
	if got.Type != "chat_message_submitted" || got.Room != "plaza" {
		t.Fatalf("event = %+v", got)
	}
	if got.Time.IsZero() {
		t.Fatal("router should stamp events without a time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("EventsTotal = %d, want 1", stats.EventsTotal)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router := logging.NewRouter(nil, cfg, []logging.NamedSink{
		{Name: "memory", Sink: sink},
	})

	router.Publish(context.Background(), logging.Event{Type: "a", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "b", Severity: logging.SeverityWarn})

	waitFor(t, func() bool { return len(sink.Events()) == 1 }, "warn event to pass")
	time.Sleep(20 * time.Millisecond)
	events := sink.Events()
	if len(events) != 1 || events[0].Type != "b" {
		t.Fatalf("events = %+v, info must be filtered", events)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	router.Close(ctx)
}

func TestRouterAttachesConfiguredFields(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"deployment": "test"}
	router := logging.NewRouter(nil, cfg, []logging.NamedSink{
		{Name: "memory", Sink: sink},
	})

	router.Publish(context.Background(), logging.Event{Type: "a", Severity: logging.SeverityInfo})
	waitFor(t, func() bool { return len(sink.Events()) == 1 }, "event to arrive")
	if got := sink.Events()[0].Extra["deployment"]; got != "test" {
		t.Fatalf("deployment field = %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	router.Close(ctx)
}

func TestRouterIgnoresUntypedEvents(t *testing.T) {
	sink := sinks.NewMemorySink()
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "memory", Sink: sink},
	})

	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})
	time.Sleep(20 * time.Millisecond)
	if n := len(sink.Events()); n != 0 {
		t.Fatalf("events = %d, untyped events must be dropped", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	router.Close(ctx)
}

func TestRouterCloseIsIdempotent(t *testing.T) {
	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "memory", Sink: sinks.NewMemorySink()},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := router.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Publishing after close is a no-op, not a panic.
	router.Publish(context.Background(), logging.Event{Type: "late"})
}

func TestWithFieldsDoesNotOverrideEventFields(t *testing.T) {
	var captured logging.Event
	p := logging.WithFields(logging.PublisherFunc(func(ctx context.Context, event logging.Event) {
		captured = event
	}), map[string]any{"source": "wrapper", "shared": "wrapper"})

	p.Publish(context.Background(), logging.Event{
		Type:  "a",
		Extra: map[string]any{"shared": "event"},
	})

	if captured.Extra["source"] != "wrapper" {
		t.Fatalf("source = %v, want the wrapper field attached", captured.Extra["source"])
	}
	if captured.Extra["shared"] != "event" {
		t.Fatalf("shared = %v, event fields must win", captured.Extra["shared"])
	}
}
