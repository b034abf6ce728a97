package clash

import (
	"context"

	"github.com/onein50million/counter-attack/logging"
)

const (
	EventFinalClashStarted logging.EventType = "clash.final_clash_started"
	EventBoutResolved      logging.EventType = "clash.bout_resolved"
	EventLifeLost          logging.EventType = "clash.life_lost"
)

// StartedPayload records the lives each player enters the final clash with.
type StartedPayload struct {
	Lives uint8 `json:"lives"`
}

// BoutPayload describes an exchange where both players swung. Loser is nil on
// an exact tie.
type BoutPayload struct {
	Loser *uint8 `json:"loser,omitempty"`
}

type LifeLostPayload struct {
	Remaining uint8 `json:"remaining"`
}

func FinalClashStarted(ctx context.Context, pub logging.Publisher, frame uint64, payload StartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFinalClashStarted,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryClash,
		Payload:  payload,
		Extra:    extra,
	})
}

func BoutResolved(ctx context.Context, pub logging.Publisher, frame uint64, payload BoutPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBoutResolved,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryClash,
		Payload:  payload,
		Extra:    extra,
	})
}

// LifeLost publishes actor losing a final clash life.
func LifeLost(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload LifeLostPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLifeLost,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryClash,
		Payload:  payload,
		Extra:    extra,
	})
}
