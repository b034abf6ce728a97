package rollback

import (
	"context"

	"github.com/onein50million/counter-attack/logging"
)

const (
	// EventRollback is emitted when the session rewinds live state.
	EventRollback logging.EventType = "rollback.rollback"
	// EventSaveMismatch is emitted when a save request names a frame other
	// than the live one.
	EventSaveMismatch logging.EventType = "rollback.save_mismatch"
	// EventDesync is emitted when a peer reports a different fingerprint for
	// a confirmed frame.
	EventDesync logging.EventType = "rollback.desync"
)

// RollbackPayload records the live frame before the load and the frame loaded.
type RollbackPayload struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Depth uint64 `json:"depth"`
}

type SaveMismatchPayload struct {
	Requested uint64 `json:"requested"`
	Live      uint64 `json:"live"`
}

type DesyncPayload struct {
	Local  uint64 `json:"local"`
	Remote uint64 `json:"remote"`
}

func Rollback(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RollbackPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRollback,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryRollback,
		Payload:  payload,
		Extra:    extra,
	})
}

func SaveMismatch(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload SaveMismatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSaveMismatch,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryRollback,
		Payload:  payload,
		Extra:    extra,
	})
}

func Desync(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload DesyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDesync,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryRollback,
		Payload:  payload,
		Extra:    extra,
	})
}
