package combat

import (
	"math"
	"testing"

	"github.com/onein50million/counter-attack/internal/event"
	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/state"
)

var testTimebase = frame.NewTimebase(0.1)

func newTestResolver() *Resolver {
	return NewResolver(testTimebase, Tuning{
		Attack:          state.Attack{StartupTime: 1.0, BlockGrace: 0.3, RecoverTime: 0.2},
		BaseStaminaLoss: 0.1,
	})
}

func noInputs() [state.PlayerCount]frame.FrameOffset {
	return [state.PlayerCount]frame.FrameOffset{frame.Invalid(), frame.Invalid()}
}

func TestUnansweredSwingSetsWindowWithoutDelta(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)
	inputs := noInputs()
	inputs[0] = frame.At(10)

	events, err := r.Resolve(&w, inputs, frame.At(11), 10)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for an unanswered swing, got %v", events)
	}
	striker := w.Players[0]
	if !striker.Attacking() || striker.AttackStart != frame.At(10) {
		t.Fatalf("expected attack started at frame 10, got %+v", striker)
	}
	if got := testTimebase.Elapsed(striker.AttackStart, striker.AttackRecover); math.Abs(float64(got)-1.2) > 1e-9 {
		t.Fatalf("expected recover 1.2s after start, got %v", got)
	}
	if striker.LastDefendResult != 0 {
		t.Fatalf("expected no defend result, got %v", striker.LastDefendResult)
	}
	if w.Players[0].Stamina != state.UnormOne || w.Players[1].Stamina != state.UnormOne {
		t.Fatalf("expected whiff to cost no stamina")
	}
}

func TestFramePerfectCounterIsInhuman(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)

	inputs := noInputs()
	inputs[0] = frame.At(10)
	if _, err := r.Resolve(&w, inputs, frame.At(11), 10); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	impact, ok := w.Players[0].Impact(testTimebase)
	if !ok {
		t.Fatalf("expected attacker to have an impact time")
	}
	inputs = noInputs()
	inputs[1] = impact
	events, err := r.Resolve(&w, inputs, frame.At(16), 15)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one block event, got %v", events)
	}
	block, ok := events[0].(event.BlockEvent)
	if !ok {
		t.Fatalf("expected BlockEvent, got %T", events[0])
	}
	if block.Player != 1 || block.Delta != 0 || block.Quality != 1 {
		t.Fatalf("unexpected block event: %+v", block)
	}
	if block.Label != "INHUMAN BLOCK" {
		t.Fatalf("expected inhuman label, got %q", block.Label)
	}
	if w.Players[0].Attacking() {
		t.Fatalf("expected countered attack to be cleared")
	}
	lost := 1 - w.Players[1].Stamina.Float()
	if math.Abs(lost-0.1*0.2) > 1e-9 {
		t.Fatalf("expected stamina loss %v, got %v", 0.1*0.2, lost)
	}
	if w.Players[0].Stamina != state.UnormOne {
		t.Fatalf("expected attacker stamina untouched")
	}
}

func TestExposureAfterGraceWindow(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)
	inputs := noInputs()
	inputs[0] = frame.At(10)
	if _, err := r.Resolve(&w, inputs, frame.At(11), 10); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Impact lands at frame 20 and the grace window closes around frame 23.
	events, err := r.Resolve(&w, noInputs(), frame.At(22), 21)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(events) != 0 || !w.Players[0].Attacking() {
		t.Fatalf("expected attack to still be pending inside the grace window")
	}

	events, err = r.Resolve(&w, noInputs(), frame.At(24), 23)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one hit event, got %v", events)
	}
	hit, ok := events[0].(event.HitEvent)
	if !ok || hit.Victim != 1 || hit.Attacker != 0 {
		t.Fatalf("unexpected hit event: %+v", events[0])
	}
	if w.Players[0].Attacking() {
		t.Fatalf("expected landed attack to be cleared")
	}
	if lost := 1 - w.Players[1].Stamina.Float(); math.Abs(lost-0.15) > 1e-9 {
		t.Fatalf("expected exposure loss 0.15, got %v", lost)
	}
}

func TestSimultaneousExhaustionEntersFinalClash(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)
	for i := range w.Players {
		w.Players[i].Stamina = state.UnormFromFloat(0.01)
		w.Players[i].CurrentAttack = &DefaultAttack
		w.Players[i].AttackStart = frame.At(0)
	}

	events, err := r.Resolve(&w, noInputs(), frame.At(50), 49)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if w.GameState != state.FinalClash {
		t.Fatalf("expected final clash, got %s", w.GameState)
	}
	for _, e := range events {
		if _, ok := e.(event.GameOverEvent); ok {
			t.Fatalf("expected no game over on simultaneous exhaustion")
		}
	}
	if _, ok := events[len(events)-1].(event.FinalClashStartedEvent); !ok {
		t.Fatalf("expected final clash started event last, got %v", events)
	}
	if w.Players[0].Stamina != 0 || w.Players[1].Stamina != 0 {
		t.Fatalf("expected both players exhausted")
	}

	again, err := r.Resolve(&w, noInputs(), frame.At(51), 50)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected combat to halt during final clash, got %v %v", again, err)
	}
}

func TestSingleExhaustionEndsMatchOnce(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)
	w.Players[1].Stamina = state.UnormFromFloat(0.05)
	w.Players[0].CurrentAttack = &DefaultAttack
	w.Players[0].AttackStart = frame.At(0)

	events, err := r.Resolve(&w, noInputs(), frame.At(50), 49)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if w.Players[1].Stamina != 0 {
		t.Fatalf("expected loss beyond remaining stamina to clamp at zero")
	}
	var overs []event.GameOverEvent
	for _, e := range events {
		if over, ok := e.(event.GameOverEvent); ok {
			overs = append(overs, over)
		}
	}
	if len(overs) != 1 || overs[0].Loser == nil || *overs[0].Loser != 1 {
		t.Fatalf("expected a single game over with player 1 losing, got %+v", overs)
	}
	if w.GameState != state.Over {
		t.Fatalf("expected match over, got %s", w.GameState)
	}
}

func TestExhaustedPlayerDoesNotRetrigger(t *testing.T) {
	r := newTestResolver()
	w := state.NewWorld(4)
	w.Players[1].Stamina = 0
	w.Players[0].CurrentAttack = &DefaultAttack
	w.Players[0].AttackStart = frame.At(0)

	events, err := r.Resolve(&w, noInputs(), frame.At(50), 49)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for _, e := range events {
		switch e.(type) {
		case event.StaminaDepletedEvent, event.GameOverEvent, event.FinalClashStartedEvent:
			t.Fatalf("expected no exhaustion transition, got %T", e)
		}
	}
	if w.GameState != state.Playing {
		t.Fatalf("expected state unchanged, got %s", w.GameState)
	}
}

func TestClassifyTiers(t *testing.T) {
	cases := []struct {
		delta frame.Seconds
		want  Tier
	}{
		{0, TierInhuman},
		{0.0005, TierPerfect},
		{-0.005, TierExcellent},
		{0.05, TierGood},
		{-0.15, TierDecent},
		{0.5, TierSloppy},
		{-3, TierSloppy},
	}
	for _, tc := range cases {
		if got := Classify(Quality(tc.delta)); got != tc.want {
			t.Fatalf("delta %v: expected %s, got %s", tc.delta, tc.want, got)
		}
	}
	if Quality(-3) != 0 {
		t.Fatalf("expected quality clamped to zero")
	}
}

func TestAttackProgress(t *testing.T) {
	p := state.NewPlayerState(4)
	if _, ok := AttackProgress(testTimebase, p, frame.At(3)); ok {
		t.Fatalf("expected idle player to report no progress")
	}
	p.CurrentAttack = &DefaultAttack
	p.AttackStart = frame.At(3)
	got, ok := AttackProgress(testTimebase, p, frame.At(8))
	if !ok || math.Abs(float64(got)-0.5) > 1e-9 {
		t.Fatalf("expected 0.5s progress, got %v", got)
	}
}
