package state

import (
	"fmt"

	"github.com/onein50million/counter-attack/internal/frame"
)

// PlayerCount is the number of participants in a match.
const PlayerCount = 2

// Handle identifies a player slot.
type Handle uint8

// Opponent returns the other slot.
func (h Handle) Opponent() Handle {
	return 1 - h
}

// Valid reports whether h addresses one of the two slots.
func (h Handle) Valid() bool {
	return h < PlayerCount
}

func (h Handle) String() string {
	return fmt.Sprintf("player-%d", h)
}

// Attack describes the timing of a swing. Durations are in seconds of
// simulation time.
type Attack struct {
	StartupTime frame.Seconds `json:"startupTime" yaml:"startup"`
	BlockGrace  frame.Seconds `json:"blockGrace" yaml:"block_grace"`
	RecoverTime frame.Seconds `json:"recoverTime" yaml:"recover"`
}

// PlayerState is the per-player portion of the world.
type PlayerState struct {
	// CurrentAttack is nil when the player has no swing in flight. The
	// pointee is shared configuration and is never mutated.
	CurrentAttack    *Attack           `json:"currentAttack,omitempty"`
	AttackStart      frame.FrameOffset `json:"attackStart"`
	AttackRecover    frame.FrameOffset `json:"attackRecover"`
	LastDefendResult Inorm             `json:"lastDefendResult"`
	Stamina          Unorm             `json:"stamina"`
	FinalClashLives  uint8             `json:"finalClashLives"`
	// FinalClashLastSwing holds frame.Invalid() until the player swings in
	// the current bout.
	FinalClashLastSwing frame.FrameOffset `json:"finalClashLastSwing"`
}

// NewPlayerState returns a rested player with the given number of final
// clash lives.
func NewPlayerState(lives uint8) PlayerState {
	return PlayerState{
		Stamina:             UnormOne,
		FinalClashLives:     lives,
		FinalClashLastSwing: frame.Invalid(),
	}
}

// Attacking reports whether the player has a swing in flight.
func (p PlayerState) Attacking() bool {
	return p.CurrentAttack != nil
}

// Impact returns the instant the current attack connects.
func (p PlayerState) Impact(tb frame.Timebase) (frame.FrameOffset, bool) {
	if p.CurrentAttack == nil {
		return frame.FrameOffset{}, false
	}
	return tb.Add(p.AttackStart, p.CurrentAttack.StartupTime), true
}

// Recovered reports whether a new swing may start at now. A player whose
// attack was countered or landed is free to swing again immediately.
func (p PlayerState) Recovered(now frame.FrameOffset) bool {
	if p.CurrentAttack == nil {
		return true
	}
	return now.After(p.AttackRecover)
}

// HasSwung reports whether the player latched a swing in the current bout.
func (p PlayerState) HasSwung() bool {
	return p.FinalClashLastSwing.IsValid()
}

// TakeFinalClashLife removes one life, never dropping below zero.
func (p *PlayerState) TakeFinalClashLife() {
	if p.FinalClashLives > 0 {
		p.FinalClashLives--
	}
}

// Exhausted reports whether stamina is fully spent.
func (p PlayerState) Exhausted() bool {
	return p.Stamina == 0
}
