package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onein50million/counter-attack/internal/net/proto"
	"github.com/onein50million/counter-attack/internal/state"
)

func TestHealth(t *testing.T) {
	handler := NewHTTPHandler(NewFeed(0), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestDiagnosticsIncludesMatchDetails(t *testing.T) {
	handler := NewHTTPHandler(NewFeed(0), HTTPHandlerConfig{
		Diagnostics: func() any { return map[string]any{"frame": 12} },
	})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}
	var payload struct {
		Status string         `json:"status"`
		Feed   FeedStats      `json:"feed"`
		Match  map[string]any `json:"match"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if payload.Status != "ok" || payload.Match["frame"] != float64(12) {
		t.Fatalf("unexpected diagnostics %s", resp.Body.String())
	}
}

func TestEventSchema(t *testing.T) {
	handler := NewHTTPHandler(NewFeed(0), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/events/schema", nil))
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode schema: %v", err)
	}
	if _, ok := payload[proto.TypeEvent]; !ok {
		t.Fatalf("expected event schema, got %s", resp.Body.String())
	}

	post := httptest.NewRecorder()
	handler.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/events/schema", nil))
	if post.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", post.Code)
	}
}

func TestPprofTraceIsOptIn(t *testing.T) {
	handler := NewHTTPHandler(NewFeed(0), HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/trace", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected trace endpoint to be absent, got %d", resp.Code)
	}
}

func TestEventStreamDeliversAndAcceptsAttacks(t *testing.T) {
	feed := NewFeed(4)
	intents := make(chan state.Handle, 1)
	server := httptest.NewServer(NewHTTPHandler(feed, HTTPHandlerConfig{Intents: intents, Local: 1}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for feed.Stats().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber to register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.Publish([]byte(`{"type":"status"}`))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != `{"type":"status"}` {
		t.Fatalf("expected published message, got %s", data)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"attack"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case h := <-intents:
		if h != 1 {
			t.Fatalf("expected local handle 1, got %d", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected attack intent")
	}
}

func TestFeedDropsForSlowSubscribers(t *testing.T) {
	feed := NewFeed(1)
	id, messages, ok := feed.Subscribe()
	if !ok {
		t.Fatalf("expected subscribe to succeed")
	}

	feed.Publish([]byte("a"))
	feed.Publish([]byte("b"))
	stats := feed.Stats()
	if stats.Published != 2 || stats.Dropped != 1 {
		t.Fatalf("expected 2 published and 1 dropped, got %+v", stats)
	}
	if got := string(<-messages); got != "a" {
		t.Fatalf("expected first message to survive, got %q", got)
	}

	feed.Unsubscribe(id)
	if _, open := <-messages; open {
		t.Fatalf("expected channel closed after unsubscribe")
	}
}

func TestFeedClose(t *testing.T) {
	feed := NewFeed(1)
	_, messages, _ := feed.Subscribe()
	feed.Close()
	if _, open := <-messages; open {
		t.Fatalf("expected channel closed")
	}
	if _, _, ok := feed.Subscribe(); ok {
		t.Fatalf("expected subscribe after close to fail")
	}
	feed.Publish([]byte("x"))
	if feed.Stats().Published != 0 {
		t.Fatalf("expected publish after close to be ignored")
	}
}
