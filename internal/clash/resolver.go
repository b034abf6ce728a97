// Package clash runs the sudden-death bouts that break a simultaneous
// stamina knockout.
package clash

import (
	"fmt"

	"github.com/onein50million/counter-attack/internal/event"
	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/state"
)

const (
	// DefaultClashLength is the half-width of a bout window in seconds.
	DefaultClashLength frame.Seconds = 1.0
	// DefaultLives is the number of bouts a player may lose.
	DefaultLives uint8 = 4
)

// Tuning holds the final clash constants shared by both peers.
type Tuning struct {
	ClashLength frame.Seconds
	Lives       uint8
}

// DefaultTuning returns the stock final clash constants.
func DefaultTuning() Tuning {
	return Tuning{ClashLength: DefaultClashLength, Lives: DefaultLives}
}

// Resolver advances the final clash one confirmed frame at a time.
type Resolver struct {
	timebase frame.Timebase
	tuning   Tuning
}

// NewResolver builds a resolver for the given timebase and tuning.
func NewResolver(tb frame.Timebase, tuning Tuning) *Resolver {
	return &Resolver{timebase: tb, tuning: tuning}
}

// Schedule sets the next bout deadline when none is pending.
func (r *Resolver) Schedule(w *state.World, now frame.FrameOffset) {
	if !w.FinalClash.Scheduled() {
		w.FinalClash.NextClash = r.timebase.Add(now, r.tuning.ClashLength)
	}
}

// Resolve applies one frame of final clash rules. Each player's first swing
// in a bout is latched; the bout resolves early once both have swung, or
// after the deadline has been passed by a full clash length.
func (r *Resolver) Resolve(w *state.World, inputs [state.PlayerCount]frame.FrameOffset, now frame.FrameOffset, frameNo uint64) ([]event.Event, error) {
	if w.GameState != state.FinalClash {
		return nil, nil
	}
	r.Schedule(w, now)

	for i := range w.Players {
		p := &w.Players[i]
		if inputs[i].IsValid() && !p.HasSwung() {
			p.FinalClashLastSwing = inputs[i]
		}
	}

	deadline := w.FinalClash.NextClash
	var events []event.Event
	switch {
	case r.timebase.Elapsed(now, deadline) < -r.tuning.ClashLength:
		events = r.resolveTimeout(w, frameNo)
	case w.Players[0].HasSwung() && w.Players[1].HasSwung():
		events = r.resolveExchange(w, deadline, frameNo)
	default:
		return nil, nil
	}

	w.FinalClash.NextClash = frame.Invalid()
	for i := range w.Players {
		w.Players[i].FinalClashLastSwing = frame.Invalid()
	}

	over, ended := r.outcome(w, frameNo)
	if !ended {
		return events, nil
	}
	if err := w.Transition(state.Over); err != nil {
		return events, fmt.Errorf("end final clash: %w", err)
	}
	return append(events, over), nil
}

// resolveTimeout charges a life to every player who never swung.
func (r *Resolver) resolveTimeout(w *state.World, frameNo uint64) []event.Event {
	var events []event.Event
	for i := range w.Players {
		handle := state.Handle(i)
		player, opponent := w.Pair(handle)
		if player.HasSwung() {
			continue
		}
		player.TakeFinalClashLife()
		events = append(events, event.FinalClashLifeLostEvent{Frame: frameNo, Player: handle, Remaining: player.FinalClashLives})
		if opponent.HasSwung() {
			events = append(events, event.HitEvent{Frame: frameNo, Victim: handle, Attacker: handle.Opponent()})
		}
	}
	return events
}

// resolveExchange charges a life to whichever swing landed farther from the
// deadline. An exact tie costs nothing.
func (r *Resolver) resolveExchange(w *state.World, deadline frame.FrameOffset, frameNo uint64) []event.Event {
	first := abs(r.timebase.Elapsed(w.Players[0].FinalClashLastSwing, deadline))
	second := abs(r.timebase.Elapsed(w.Players[1].FinalClashLastSwing, deadline))

	clash := event.ClashEvent{Frame: frameNo}
	switch {
	case first < second:
		clash.Loser = event.HandleRef(1)
	case second < first:
		clash.Loser = event.HandleRef(0)
	default:
		return []event.Event{clash}
	}
	loser := w.Player(*clash.Loser)
	loser.TakeFinalClashLife()
	return []event.Event{
		clash,
		event.FinalClashLifeLostEvent{Frame: frameNo, Player: *clash.Loser, Remaining: loser.FinalClashLives},
	}
}

// outcome reports the match result once either player is out of lives. When
// only one player is out, the loser field names the other player.
func (r *Resolver) outcome(w *state.World, frameNo uint64) (event.GameOverEvent, bool) {
	firstOut := w.Players[0].FinalClashLives == 0
	secondOut := w.Players[1].FinalClashLives == 0
	switch {
	case firstOut && secondOut:
		return event.GameOverEvent{Frame: frameNo}, true
	case firstOut:
		return event.GameOverEvent{Frame: frameNo, Loser: event.HandleRef(1)}, true
	case secondOut:
		return event.GameOverEvent{Frame: frameNo, Loser: event.HandleRef(0)}, true
	default:
		return event.GameOverEvent{}, false
	}
}

func abs(s frame.Seconds) frame.Seconds {
	if s < 0 {
		return -s
	}
	return s
}
