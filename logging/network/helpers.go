package network

import (
	"context"

	"github.com/onein50million/counter-attack/logging"
)

const (
	EventSynchronizing logging.EventType = "network.synchronizing"
	EventSynchronized  logging.EventType = "network.synchronized"
	EventInterrupted   logging.EventType = "network.interrupted"
	EventResumed       logging.EventType = "network.resumed"
	EventDisconnected  logging.EventType = "network.disconnected"
	// EventStats is emitted periodically with the peer connection statistics.
	EventStats logging.EventType = "network.stats"
)

type SynchronizingPayload struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

type InterruptedPayload struct {
	DisconnectTimeoutMillis int64 `json:"disconnectTimeoutMillis"`
}

// StatsPayload mirrors rollback.NetworkStats.
type StatsPayload struct {
	PingMillis         int64   `json:"pingMillis"`
	SendQueueLen       int     `json:"sendQueueLen"`
	KbpsSent           float64 `json:"kbpsSent"`
	LocalFramesBehind  int     `json:"localFramesBehind"`
	RemoteFramesBehind int     `json:"remoteFramesBehind"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, frame uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Frame:    frame,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// Synchronizing publishes handshake progress.
func Synchronizing(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload SynchronizingPayload, extra map[string]any) {
	publish(ctx, pub, EventSynchronizing, logging.SeverityDebug, frame, actor, payload, extra)
}

// Synchronized publishes the completed handshake with the peer.
func Synchronized(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventSynchronized, logging.SeverityInfo, frame, actor, nil, extra)
}

// Interrupted publishes that the peer has gone quiet.
func Interrupted(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload InterruptedPayload, extra map[string]any) {
	publish(ctx, pub, EventInterrupted, logging.SeverityWarn, frame, actor, payload, extra)
}

func Resumed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventResumed, logging.SeverityInfo, frame, actor, nil, extra)
}

func Disconnected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, EventDisconnected, logging.SeverityError, frame, actor, nil, extra)
}

// Stats publishes a periodic network statistics sample.
func Stats(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload StatsPayload, extra map[string]any) {
	publish(ctx, pub, EventStats, logging.SeverityInfo, frame, actor, payload, extra)
}
