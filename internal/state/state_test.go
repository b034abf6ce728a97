package state

import (
	"errors"
	"testing"

	"github.com/onein50million/counter-attack/internal/frame"
)

var testAttack = Attack{StartupTime: 0.9, BlockGrace: 0.3, RecoverTime: 0.2}

func populatedWorld() World {
	w := NewWorld(4)
	w.Players[0].CurrentAttack = &testAttack
	w.Players[0].AttackStart = frame.FrameOffset{Frame: 12, Offset: 1 << 60}
	w.Players[0].AttackRecover = frame.FrameOffset{Frame: 23, Offset: 1 << 60}
	w.Players[1].Stamina = UnormFromFloat(0.35)
	w.Players[1].LastDefendResult = InormFromFloat(-0.02)
	w.Players[1].FinalClashLives = 2
	return w
}

func TestCaptureRestorePreservesFingerprint(t *testing.T) {
	live := populatedWorld()
	saved := Capture(12, live)

	// Mutating the live world must not leak into the snapshot.
	live.Players[1].Stamina = 0
	live.GameState = Over

	restored, err := saved.Restore()
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	again := Capture(12, restored)
	if again.Fingerprint != saved.Fingerprint {
		t.Fatalf("expected fingerprint %016x, got %016x", saved.Fingerprint, again.Fingerprint)
	}
	if restored.Players[1].Stamina == 0 {
		t.Fatalf("expected snapshot to be isolated from live mutations")
	}
}

func TestFingerprintCoversEveryField(t *testing.T) {
	base := Fingerprint(populatedWorld())
	mutations := map[string]func(*World){
		"attack":      func(w *World) { w.Players[0].CurrentAttack = nil },
		"start":       func(w *World) { w.Players[0].AttackStart.Offset++ },
		"recover":     func(w *World) { w.Players[0].AttackRecover.Frame++ },
		"defend":      func(w *World) { w.Players[1].LastDefendResult++ },
		"stamina":     func(w *World) { w.Players[1].Stamina-- },
		"lives":       func(w *World) { w.Players[1].FinalClashLives-- },
		"swing":       func(w *World) { w.Players[1].FinalClashLastSwing = frame.At(3) },
		"next clash":  func(w *World) { w.FinalClash.NextClash = frame.At(9) },
		"game state":  func(w *World) { w.GameState = FinalClash },
		"player swap": func(w *World) { w.Players[0], w.Players[1] = w.Players[1], w.Players[0] },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			w := populatedWorld()
			mutate(&w)
			if Fingerprint(w) == base {
				t.Fatalf("expected fingerprint to change")
			}
		})
	}
}

func TestRestoreDetectsCorruption(t *testing.T) {
	saved := Capture(3, populatedWorld())
	saved.World.Players[0].Stamina = 1
	if _, err := saved.Restore(); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestTransitionOrdering(t *testing.T) {
	cases := []struct {
		from, to GameState
		ok       bool
	}{
		{Playing, FinalClash, true},
		{Playing, Over, true},
		{FinalClash, Over, true},
		{FinalClash, Playing, false},
		{Over, Playing, false},
		{Over, FinalClash, false},
		{Playing, Playing, false},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			w := NewWorld(1)
			w.GameState = tc.from
			err := w.Transition(tc.to)
			if tc.ok && err != nil {
				t.Fatalf("expected transition to succeed, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestUnormSaturatingSub(t *testing.T) {
	half := UnormFromFloat(0.5)
	if got := half.SaturatingSub(UnormOne); got != 0 {
		t.Fatalf("expected floor at zero, got %d", got)
	}
	if got := UnormOne.SaturatingSub(half).Float(); got < 0.4999 || got > 0.5001 {
		t.Fatalf("expected ~0.5, got %v", got)
	}
	if UnormFromFloat(2) != UnormOne || UnormFromFloat(-1) != 0 {
		t.Fatalf("expected conversion to clamp into [0,1]")
	}
	if InormFromFloat(-3) != -InormOne || InormFromFloat(3) != InormOne {
		t.Fatalf("expected conversion to clamp into [-1,1]")
	}
}

func TestRecoveredRequiresRecoverTimeToPass(t *testing.T) {
	p := NewPlayerState(4)
	if !p.Recovered(frame.At(0)) {
		t.Fatalf("expected idle player to be recovered")
	}
	p.CurrentAttack = &testAttack
	p.AttackRecover = frame.At(10)
	if p.Recovered(frame.At(10)) {
		t.Fatalf("expected player to still be recovering at the recover instant")
	}
	if !p.Recovered(frame.FrameOffset{Frame: 10, Offset: 1}) {
		t.Fatalf("expected player to be recovered after the recover instant")
	}
}
