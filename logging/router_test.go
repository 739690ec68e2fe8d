package logging

import (
	"context"
	"sync"
	"testing"
	"time"
)

// captureSink records events in-process; the sinks package depends on this
// one, so the router tests carry their own stub.
type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestRouter(t *testing.T, cfg Config, sink Sink) *Router {
	t.Helper()
	clock := ClockFunc(func() time.Time {
		return time.Unix(1700000000, 0)
	})
	router, err := NewRouter(cfg, clock, nil, map[string]Sink{"capture": sink})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func TestRouterDeliversToEnabledSinks(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"capture"}
	cfg.Fields = map[string]any{"node": "test-1"}
	router := newTestRouter(t, cfg, sink)

	router.Publish(context.Background(), Event{
		Type:     EventType("lifecycle.respawned"),
		Tick:     7,
		Severity: SeverityInfo,
		Actor:    EntityRef{ID: "conn-1", Kind: EntityKindPlayer},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(events))
	}
	got := events[0]
	if got.Type != "lifecycle.respawned" || got.Tick != 7 {
		t.Fatalf("event fields lost: %+v", got)
	}
	if got.Time.Unix() != 1700000000 {
		t.Fatalf("router should stamp the clock time, got %v", got.Time)
	}
	if got.Extra["node"] != "test-1" {
		t.Fatalf("configured fields must ride along, got %v", got.Extra)
	}
	if !sink.closed {
		t.Fatalf("close must reach the sink")
	}

	stats := router.Stats()
	if stats.EventsTotal != 1 || stats.DroppedTotal != 0 {
		t.Fatalf("stats wrong: %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"capture"}
	cfg.MinimumSeverity = SeverityWarn
	router := newTestRouter(t, cfg, sink)

	router.Publish(context.Background(), Event{Type: "simulation.debug", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Type: "simulation.info", Severity: SeverityInfo})
	router.Publish(context.Background(), Event{Type: "network.send_failure", Severity: SeverityError})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	router.Close(ctx)

	events := sink.snapshot()
	if len(events) != 1 || events[0].Type != "network.send_failure" {
		t.Fatalf("expected only the error event, got %+v", events)
	}
}

func TestRouterIgnoresUntypedAndPostCloseEvents(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"capture"}
	router := newTestRouter(t, cfg, sink)

	router.Publish(context.Background(), Event{Severity: SeverityError})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	router.Close(ctx)

	router.Publish(context.Background(), Event{Type: "late", Severity: SeverityError})
	if got := sink.snapshot(); len(got) != 0 {
		t.Fatalf("untyped and post-close events must be dropped, got %+v", got)
	}
}

func TestRouterRejectsUnknownEnabledSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"capture", "absent"}
	if _, err := NewRouter(cfg, nil, nil, map[string]Sink{"capture": &captureSink{}}); err == nil {
		t.Fatalf("enabled sink without an implementation must error at startup")
	}
}

func TestRouterSinkLookup(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.EnabledSinks = []string{"capture"}
	router := newTestRouter(t, cfg, sink)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	if router.Sink("capture") != Sink(sink) {
		t.Fatalf("Sink should return the registered implementation")
	}
	if router.Sink("absent") != nil {
		t.Fatalf("unknown names should return nil")
	}
}

func TestWithFieldsDoesNotOverrideEventFields(t *testing.T) {
	var got Event
	base := PublisherFunc(func(_ context.Context, event Event) { got = event })
	wrapped := WithFields(base, map[string]any{"node": "n1", "shard": 2})

	wrapped.Publish(context.Background(), Event{
		Type:  "x",
		Extra: map[string]any{"node": "explicit"},
	})

	if got.Extra["node"] != "explicit" {
		t.Fatalf("event-set fields must win, got %v", got.Extra["node"])
	}
	if got.Extra["shard"] != 2 {
		t.Fatalf("missing fields must be filled in, got %v", got.Extra)
	}
}
