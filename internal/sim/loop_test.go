package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/state"
)

func TestLoopRunsUntilCancelled(t *testing.T) {
	session, err := rollback.NewSyncTestSession(rollback.DefaultCheckDistance)
	if err != nil {
		t.Fatalf("expected session, got %v", err)
	}
	cfg := DefaultConfig()
	cfg.Timebase = frame.NewTimebase(0.01)
	stepper, err := NewStepper(session, cfg, Deps{})
	if err != nil {
		t.Fatalf("expected stepper, got %v", err)
	}

	ticks := make(chan TickResult, 64)
	intents := make(chan state.Handle, 1)
	loop := NewLoop(stepper, intents, LoopHooks{
		AfterStep: func(result TickResult) {
			select {
			case ticks <- result:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	intents <- 0

	deadline := time.After(5 * time.Second)
	for seen := 0; seen < 5; {
		select {
		case <-ticks:
			seen++
		case <-deadline:
			t.Fatalf("expected ticks, got %d", seen)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected loop to stop")
	}
}

func TestLoopReturnsFatalError(t *testing.T) {
	session := &fakeSession{
		local:    []state.Handle{0},
		requests: [][]rollback.Request{{rollback.SaveState{Frame: 9, Cell: &rollback.Cell{}}}},
	}
	cfg := DefaultConfig()
	cfg.Timebase = frame.NewTimebase(0.01)
	stepper, err := NewStepper(session, cfg, Deps{})
	if err != nil {
		t.Fatalf("expected stepper, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := NewLoop(stepper, nil, LoopHooks{}).Run(ctx); !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("expected ErrFrameMismatch, got %v", err)
	}
}
