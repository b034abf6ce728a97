package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/onein50million/counter-attack/logging"
)

func TestJSONSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	event := logging.Event{
		Type:     "combat.block",
		Frame:    12,
		Time:     time.Unix(0, 0).UTC(),
		Actor:    logging.PlayerRef(1),
		Severity: logging.SeverityInfo,
		Payload:  map[string]any{"label": "Good Block"},
	}
	if err := sink.Write(event); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
	if err := sink.Write(event); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}
	if decoded["type"] != "combat.block" || decoded["frame"] != float64(12) || decoded["severity"] != "info" {
		t.Fatalf("unexpected wire form %v", decoded)
	}
}

func TestConsoleSinkFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf)
	sink.Write(logging.Event{
		Type:     "combat.hit",
		Frame:    3,
		Actor:    logging.PlayerRef(0),
		Targets:  []logging.EntityRef{logging.PlayerRef(1)},
		Severity: logging.SeverityWarn,
	})
	line := buf.String()
	for _, want := range []string{"[combat.hit]", "frame=3", "actor=player:0", "severity=warn", "targets=player:1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestMemorySinkOfType(t *testing.T) {
	sink := NewMemorySink()
	sink.Publish(context.Background(), logging.Event{Type: "a"})
	sink.Publish(context.Background(), logging.Event{Type: "b"})
	sink.Publish(context.Background(), logging.Event{Type: "a"})
	if got := len(sink.OfType("a")); got != 2 {
		t.Fatalf("expected 2 events of type a, got %d", got)
	}
	sink.Reset()
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected reset sink to be empty, got %d", got)
	}
}
