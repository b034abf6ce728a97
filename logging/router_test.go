package logging_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/onein50million/counter-attack/logging"
	"github.com/onein50million/counter-attack/logging/sinks"
)

func newRouter(t *testing.T, cfg logging.Config, sink logging.Sink) *logging.Router {
	t.Helper()
	cfg.EnabledSinks = []string{"memory"}
	clock := logging.ClockFunc(func() time.Time { return time.Unix(1700000000, 0) })
	router, err := logging.NewRouter(cfg, clock, log.New(io.Discard, "", 0), map[string]logging.Sink{"memory": sink})
	if err != nil {
		t.Fatalf("expected router, got %v", err)
	}
	return router
}

func TestRouterDeliversEventsBeforeClose(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"match": "m-1"}
	router := newRouter(t, cfg, memory)

	router.Publish(context.Background(), logging.Event{Type: "combat.block", Frame: 7, Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "combat.hit", Frame: 8, Severity: logging.SeverityInfo, Extra: map[string]any{"match": "override"}})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}

	events := memory.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Extra["match"] != "m-1" {
		t.Fatalf("expected router field to be attached, got %v", events[0].Extra)
	}
	if events[1].Extra["match"] != "override" {
		t.Fatalf("expected event field to win, got %v", events[1].Extra)
	}
	if !events[0].Time.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("expected router clock to stamp time, got %v", events[0].Time)
	}
	if got := router.Stats().EventsTotal; got != 2 {
		t.Fatalf("expected 2 forwarded events, got %d", got)
	}
	if got := router.Metrics().Snapshot()["events.combat.block"]; got != 1 {
		t.Fatalf("expected per-type counter 1, got %d", got)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	memory := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router := newRouter(t, cfg, memory)

	router.Publish(context.Background(), logging.Event{Type: "debug.noise", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "network.disconnected", Severity: logging.SeverityError})
	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}

	events := memory.Events()
	if len(events) != 1 || events[0].Type != "network.disconnected" {
		t.Fatalf("expected only the error event, got %+v", events)
	}
}

func TestRouterRejectsUnknownSink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"json"}
	_, err := logging.NewRouter(cfg, nil, log.New(io.Discard, "", 0), map[string]logging.Sink{})
	if !errors.Is(err, logging.ErrUnknownSink) {
		t.Fatalf("expected ErrUnknownSink, got %v", err)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	memory := sinks.NewMemorySink()
	router := newRouter(t, logging.DefaultConfig(), memory)
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
	if len(memory.Events()) != 0 {
		t.Fatalf("expected no events after close, got %d", len(memory.Events()))
	}
}

func TestWithFieldsDecoratesPublisher(t *testing.T) {
	memory := sinks.NewMemorySink()
	pub := logging.WithFields(memory, map[string]any{"match": "abc"})
	pub.Publish(context.Background(), logging.Event{Type: "x"})

	events := memory.Events()
	if len(events) != 1 || events[0].Extra["match"] != "abc" {
		t.Fatalf("expected decorated event, got %+v", events)
	}
	if logging.WithFields(nil, nil) == nil {
		t.Fatalf("expected nop publisher for nil input")
	}
}

func TestMetricsAddAndStore(t *testing.T) {
	var metrics logging.Metrics
	metrics.TelemetryAdd("rollbacks", 2)
	metrics.TelemetryAdd("rollbacks", 1)
	metrics.TelemetryStore("frame", 40)
	metrics.TelemetryStore("frame", 41)

	snapshot := metrics.Snapshot()
	if snapshot["rollbacks"] != 3 || snapshot["frame"] != 41 {
		t.Fatalf("expected rollbacks=3 frame=41, got %v", snapshot)
	}
	snapshot["frame"] = 0
	if metrics.Snapshot()["frame"] != 41 {
		t.Fatalf("expected snapshot to be a copy")
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug": logging.SeverityDebug,
		"":      logging.SeverityInfo,
		"warn":  logging.SeverityWarn,
		"error": logging.SeverityError,
	}
	for name, want := range cases {
		got, ok := logging.ParseSeverity(name)
		if !ok || got != want {
			t.Fatalf("expected %v for %q, got %v (ok=%v)", want, name, got, ok)
		}
	}
	if _, ok := logging.ParseSeverity("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}
