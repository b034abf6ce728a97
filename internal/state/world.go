package state

import (
	"errors"
	"fmt"

	"github.com/onein50million/counter-attack/internal/frame"
)

// ErrInvalidTransition is returned when a game state change would move
// backwards or skip the state machine's ordering.
var ErrInvalidTransition = errors.New("state: invalid game state transition")

// GameState gates which resolvers run during a frame.
type GameState uint8

const (
	Playing GameState = iota
	FinalClash
	Over
)

func (s GameState) String() string {
	switch s {
	case Playing:
		return "playing"
	case FinalClash:
		return "final_clash"
	case Over:
		return "over"
	default:
		return fmt.Sprintf("game_state(%d)", uint8(s))
	}
}

// MarshalText renders the state name for JSON diagnostics.
func (s GameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FinalClashState tracks the pending sudden-death bout.
type FinalClashState struct {
	// NextClash is frame.Invalid() when no bout is scheduled.
	NextClash frame.FrameOffset `json:"nextClash"`
}

// Scheduled reports whether a bout deadline is pending.
func (f FinalClashState) Scheduled() bool {
	return f.NextClash.IsValid()
}

// World is the complete simulation state shared by both peers.
type World struct {
	Players    [PlayerCount]PlayerState `json:"players"`
	FinalClash FinalClashState          `json:"finalClash"`
	GameState  GameState                `json:"gameState"`
}

// NewWorld returns the initial state of a match.
func NewWorld(lives uint8) World {
	return World{
		Players: [PlayerCount]PlayerState{
			NewPlayerState(lives),
			NewPlayerState(lives),
		},
		FinalClash: FinalClashState{NextClash: frame.Invalid()},
		GameState:  Playing,
	}
}

// Clone returns an independent copy of the world. Attack descriptors are
// shared because they are immutable.
func (w World) Clone() World {
	return w
}

// Player returns a pointer to the addressed slot.
func (w *World) Player(h Handle) *PlayerState {
	return &w.Players[h]
}

// Pair returns the addressed player and its opponent.
func (w *World) Pair(h Handle) (*PlayerState, *PlayerState) {
	return &w.Players[h], &w.Players[h.Opponent()]
}

// Transition moves the game state forward. Playing may move to FinalClash or
// Over, FinalClash may move to Over; anything else is rejected.
func (w *World) Transition(to GameState) error {
	from := w.GameState
	switch {
	case from == Playing && (to == FinalClash || to == Over):
	case from == FinalClash && to == Over:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	w.GameState = to
	return nil
}
