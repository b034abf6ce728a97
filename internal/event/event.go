// Package event defines the typed notifications a simulation frame hands to
// presentation. Events are produced inside frame advancement and are never
// part of the hashed world state.
package event

import (
	"github.com/onein50million/counter-attack/internal/state"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindBlock              Kind = "block"
	KindHit                Kind = "hit"
	KindClash              Kind = "clash"
	KindFinalClashStarted  Kind = "final_clash_started"
	KindGameOver           Kind = "game_over"
	KindStaminaDepleted    Kind = "stamina_depleted"
	KindFinalClashLifeLost Kind = "final_clash_life_lost"
)

// Event is implemented by every presentation notification.
type Event interface {
	Kind() Kind
	// FrameNumber is the frame whose advancement produced the event.
	FrameNumber() uint64
}

// BlockEvent reports a counter against an incoming attack.
type BlockEvent struct {
	Frame   uint64       `json:"frame"`
	Player  state.Handle `json:"player"`
	Label   string       `json:"label"`
	Quality float64      `json:"quality"`
	// Delta is the defend timing error in seconds.
	Delta float64 `json:"delta"`
	// PerfectMix is the share of the block cue given to the perfect-block
	// sound; the plain block sound gets the remainder.
	PerfectMix float64 `json:"perfectMix"`
}

func (BlockEvent) Kind() Kind            { return KindBlock }
func (e BlockEvent) FrameNumber() uint64 { return e.Frame }

// HitEvent reports an attack that landed unanswered.
type HitEvent struct {
	Frame    uint64       `json:"frame"`
	Victim   state.Handle `json:"victim"`
	Attacker state.Handle `json:"attacker"`
}

func (HitEvent) Kind() Kind            { return KindHit }
func (e HitEvent) FrameNumber() uint64 { return e.Frame }

// ClashEvent reports a final clash bout in which both players swung.
type ClashEvent struct {
	Frame uint64 `json:"frame"`
	// Loser is nil on an exact tie.
	Loser *state.Handle `json:"loser,omitempty"`
}

func (ClashEvent) Kind() Kind            { return KindClash }
func (e ClashEvent) FrameNumber() uint64 { return e.Frame }

// FinalClashStartedEvent reports simultaneous stamina exhaustion.
type FinalClashStartedEvent struct {
	Frame uint64 `json:"frame"`
}

func (FinalClashStartedEvent) Kind() Kind            { return KindFinalClashStarted }
func (e FinalClashStartedEvent) FrameNumber() uint64 { return e.Frame }

// StaminaDepletedEvent reports a player's stamina reaching zero.
type StaminaDepletedEvent struct {
	Frame  uint64       `json:"frame"`
	Player state.Handle `json:"player"`
}

func (StaminaDepletedEvent) Kind() Kind            { return KindStaminaDepleted }
func (e StaminaDepletedEvent) FrameNumber() uint64 { return e.Frame }

// FinalClashLifeLostEvent reports a life taken at bout resolution.
type FinalClashLifeLostEvent struct {
	Frame     uint64       `json:"frame"`
	Player    state.Handle `json:"player"`
	Remaining uint8        `json:"remaining"`
}

func (FinalClashLifeLostEvent) Kind() Kind            { return KindFinalClashLifeLost }
func (e FinalClashLifeLostEvent) FrameNumber() uint64 { return e.Frame }

// Result is the end-of-match text for one side.
type Result string

const (
	Victory Result = "Victory"
	Defeat  Result = "Defeat"
	Tie     Result = "Tie"
)

// GameOverEvent ends the match.
type GameOverEvent struct {
	Frame uint64 `json:"frame"`
	// Loser is nil for a tie.
	Loser *state.Handle `json:"loser,omitempty"`
}

func (GameOverEvent) Kind() Kind            { return KindGameOver }
func (e GameOverEvent) FrameNumber() uint64 { return e.Frame }

// Outcome maps the event to the result seen by the local player.
func (e GameOverEvent) Outcome(local state.Handle) Result {
	switch {
	case e.Loser == nil:
		return Tie
	case *e.Loser == local:
		return Defeat
	default:
		return Victory
	}
}

// HandleRef returns a pointer to a copy of h, for optional loser fields.
func HandleRef(h state.Handle) *state.Handle {
	return &h
}

// Visible reports whether e should be surfaced to the local player's
// presentation. Block feedback belongs to the blocking side only; everything
// else is shared.
func Visible(e Event, local state.Handle) bool {
	if block, ok := e.(BlockEvent); ok {
		return block.Player == local
	}
	return true
}

// Filter returns the subset of events visible to local.
func Filter(events []Event, local state.Handle) []Event {
	if len(events) == 0 {
		return nil
	}
	visible := make([]Event, 0, len(events))
	for _, e := range events {
		if Visible(e, local) {
			visible = append(visible, e)
		}
	}
	return visible
}
