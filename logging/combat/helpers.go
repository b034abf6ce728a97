package combat

import (
	"context"

	"github.com/onein50million/counter-attack/logging"
)

const (
	// EventBlock is emitted when a player answers an incoming attack.
	EventBlock logging.EventType = "combat.block"
	// EventHit is emitted when an attack lands unanswered.
	EventHit logging.EventType = "combat.hit"
	// EventStaminaDepleted is emitted when a player's stamina first reaches zero.
	EventStaminaDepleted logging.EventType = "combat.stamina_depleted"
)

// BlockPayload describes a defence.
type BlockPayload struct {
	Label   string  `json:"label"`
	Quality float64 `json:"quality"`
	Delta   float64 `json:"delta"`
	Stamina float64 `json:"stamina"`
}

// HitPayload describes an unanswered attack.
type HitPayload struct {
	Stamina float64 `json:"stamina"`
}

// Block publishes a block by actor.
func Block(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload BlockPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBlock,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Hit publishes an attack by actor landing on victim.
func Hit(ctx context.Context, pub logging.Publisher, frame uint64, actor, victim logging.EntityRef, payload HitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHit,
		Frame:    frame,
		Actor:    actor,
		Targets:  []logging.EntityRef{victim},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

func StaminaDepleted(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStaminaDepleted,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Extra:    extra,
	})
}
