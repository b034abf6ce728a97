package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onein50million/counter-attack/internal/net/proto"
	"github.com/onein50million/counter-attack/internal/state"
)

const writeWait = 5 * time.Second

type HTTPHandlerConfig struct {
	Logger *log.Logger
	// Diagnostics builds the /diagnostics payload. Nil serves only the
	// status and server time.
	Diagnostics func() any
	// Intents receives the local handle whenever a client asks to attack.
	// Nil makes the stream read-only.
	Intents chan<- state.Handle
	Local   state.Handle
	// EnablePprofTrace mounts /debug/pprof/trace.
	EnablePprofTrace bool
}

func NewHTTPHandler(feed *Feed, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var details any
		if cfg.Diagnostics != nil {
			details = cfg.Diagnostics()
		}
		payload := struct {
			Status     string    `json:"status"`
			ServerTime int64     `json:"serverTime"`
			Feed       FeedStats `json:"feed"`
			Match      any       `json:"match,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Feed:       feed.Stats(),
			Match:      details,
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/events/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, proto.Schemas())
	})

	if cfg.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/events", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		id, messages, ok := feed.Subscribe()
		if !ok {
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed")
			conn.WriteMessage(websocket.CloseMessage, message)
			return
		}
		defer feed.Unsubscribe(id)

		go func() {
			for data := range messages {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					conn.Close()
					return
				}
			}
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed")
			conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
			conn.Close()
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := proto.DecodeClient(payload)
			if err != nil {
				logger.Printf("discarding malformed message from %s: %v", r.RemoteAddr, err)
				continue
			}
			switch msg.Type {
			case proto.TypeAttack:
				if cfg.Intents == nil {
					continue
				}
				select {
				case cfg.Intents <- cfg.Local:
				default:
					logger.Printf("dropping attack from %s: intent queue full", r.RemoteAddr)
				}
			default:
				logger.Printf("discarding unknown message type %q from %s", msg.Type, r.RemoteAddr)
			}
		}
	})

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
