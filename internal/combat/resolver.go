// Package combat resolves swings and blocks while the match is in the
// Playing state. Every function here is pure with respect to its inputs so
// that both peers reach identical results for identical confirmed inputs.
package combat

import (
	"fmt"

	"github.com/onein50million/counter-attack/internal/event"
	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/state"
)

// DefaultBaseStaminaLoss is the stamina charged for a zero-quality block.
const DefaultBaseStaminaLoss = 0.1

// DefaultAttack is the canonical swing.
var DefaultAttack = state.Attack{
	StartupTime: 0.9,
	BlockGrace:  0.3,
	RecoverTime: 0.2,
}

// Tuning holds the combat constants shared by both peers.
type Tuning struct {
	Attack          state.Attack
	BaseStaminaLoss float64
}

// DefaultTuning returns the stock combat constants.
func DefaultTuning() Tuning {
	return Tuning{Attack: DefaultAttack, BaseStaminaLoss: DefaultBaseStaminaLoss}
}

// Resolver applies combat rules for one frame at a time.
type Resolver struct {
	timebase frame.Timebase
	tuning   Tuning
	attack   *state.Attack
}

// NewResolver builds a resolver for the given timebase and tuning.
func NewResolver(tb frame.Timebase, tuning Tuning) *Resolver {
	attack := tuning.Attack
	return &Resolver{timebase: tb, tuning: tuning, attack: &attack}
}

// Tuning returns the constants the resolver was built with.
func (r *Resolver) Tuning() Tuning {
	return r.tuning
}

// Swing starts the striker's attack at t. When the opponent has an attack in
// flight the swing counters it: the opponent's attack is cleared and the
// defend timing error elapsed(t, impact) is returned with ok set.
func (r *Resolver) Swing(striker, opponent *state.PlayerState, t frame.FrameOffset) (delta frame.Seconds, ok bool) {
	striker.AttackStart = t
	striker.AttackRecover = r.timebase.Add(r.timebase.Add(t, r.attack.StartupTime), r.attack.RecoverTime)
	striker.CurrentAttack = r.attack

	impact, attacking := opponent.Impact(r.timebase)
	if !attacking {
		return 0, false
	}
	delta = r.timebase.Elapsed(t, impact)
	opponent.CurrentAttack = nil
	striker.LastDefendResult = state.InormFromFloat(float64(delta))
	return delta, true
}

// GraceDeadline is the instant after which an unanswered attack lands.
func (r *Resolver) GraceDeadline(attacker state.PlayerState) (frame.FrameOffset, bool) {
	impact, ok := attacker.Impact(r.timebase)
	if !ok {
		return frame.FrameOffset{}, false
	}
	return r.timebase.Add(impact, attacker.CurrentAttack.BlockGrace), true
}

// Resolve applies one confirmed frame of inputs. Players are processed in
// handle order; stamina exhaustion is evaluated after both have acted so a
// simultaneous knockout enters the final clash instead of picking a loser.
func (r *Resolver) Resolve(w *state.World, inputs [state.PlayerCount]frame.FrameOffset, now frame.FrameOffset, frameNo uint64) ([]event.Event, error) {
	if w.GameState != state.Playing {
		return nil, nil
	}
	var events []event.Event
	var hadStamina [state.PlayerCount]bool
	for i := range w.Players {
		hadStamina[i] = !w.Players[i].Exhausted()
	}

	for i := range w.Players {
		handle := state.Handle(i)
		player, opponent := w.Pair(handle)
		var loss float64

		if inputs[i].IsValid() {
			if delta, countered := r.Swing(player, opponent, inputs[i]); countered {
				quality := Quality(delta)
				tier := Classify(quality)
				events = append(events, event.BlockEvent{
					Frame:      frameNo,
					Player:     handle,
					Label:      tier.Label(),
					Quality:    quality,
					Delta:      float64(delta),
					PerfectMix: PerfectMix(quality),
				})
				loss = BlockLoss(r.tuning.BaseStaminaLoss, quality)
			}
		} else if deadline, attacking := r.GraceDeadline(*opponent); attacking && now.After(deadline) {
			loss = ExposureLoss(r.tuning.BaseStaminaLoss)
			opponent.CurrentAttack = nil
			events = append(events, event.HitEvent{
				Frame:    frameNo,
				Victim:   handle,
				Attacker: handle.Opponent(),
			})
		}

		player.Stamina = player.Stamina.SaturatingSub(state.UnormFromFloat(loss))
	}

	var depleted []state.Handle
	for i := range w.Players {
		if hadStamina[i] && w.Players[i].Exhausted() {
			depleted = append(depleted, state.Handle(i))
			events = append(events, event.StaminaDepletedEvent{Frame: frameNo, Player: state.Handle(i)})
		}
	}
	if len(depleted) == 0 {
		return events, nil
	}

	if w.Players[0].Exhausted() && w.Players[1].Exhausted() {
		if err := w.Transition(state.FinalClash); err != nil {
			return events, fmt.Errorf("enter final clash: %w", err)
		}
		return append(events, event.FinalClashStartedEvent{Frame: frameNo}), nil
	}

	loser := depleted[0]
	if err := w.Transition(state.Over); err != nil {
		return events, fmt.Errorf("end match: %w", err)
	}
	return append(events, event.GameOverEvent{Frame: frameNo, Loser: event.HandleRef(loser)}), nil
}

// AttackProgress reports how far into its current attack a player is, for
// animation. ok is false when the player is idle.
func AttackProgress(tb frame.Timebase, p state.PlayerState, now frame.FrameOffset) (frame.Seconds, bool) {
	if !p.Attacking() {
		return 0, false
	}
	return tb.Elapsed(p.AttackStart, now), true
}
