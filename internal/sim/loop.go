package sim

import (
	"context"
	"time"

	"github.com/onein50million/counter-attack/internal/state"
	"github.com/onein50million/counter-attack/logging/simulation"
)

// LoopHooks observe the fixed-timestep loop.
type LoopHooks struct {
	// AfterStep runs on the loop goroutine after every tick.
	AfterStep func(TickResult)
	// OnBudgetOverrun runs when a tick takes longer than one frame.
	OnBudgetOverrun func(TickResult, uint64)
}

// Loop drives a Stepper at the frame rate and feeds it attack intents.
type Loop struct {
	stepper *Stepper
	intents <-chan state.Handle
	hooks   LoopHooks
	streak  uint64
}

// NewLoop wraps stepper. intents may be nil when no local input source
// exists.
func NewLoop(stepper *Stepper, intents <-chan state.Handle, hooks LoopHooks) *Loop {
	if stepper == nil {
		return nil
	}
	return &Loop{stepper: stepper, intents: intents, hooks: hooks}
}

// Run ticks until ctx is done or the stepper reports a fatal error.
// Cancellation is not an error.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	budget := l.stepper.cfg.Timebase.Duration()
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	clock := l.stepper.deps.Clock
	for {
		select {
		case <-ctx.Done():
			return nil
		case h := <-l.intents:
			l.stepper.Attack(h)
		case <-ticker.C:
			start := clock.Now()
			result, err := l.stepper.Tick(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			result.Duration = clock.Now().Sub(start)
			result.Budget = budget
			l.checkBudget(ctx, result)

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) checkBudget(ctx context.Context, result TickResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget || result.Throttled {
		l.streak = 0
		return
	}
	l.streak++
	l.stepper.deps.Metrics.Add("sim.tick_budget_overruns", 1)
	simulation.TickBudgetOverrun(ctx, l.stepper.deps.Publisher, result.Frame, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         l.streak,
	}, nil)
	if l.hooks.OnBudgetOverrun != nil {
		l.hooks.OnBudgetOverrun(result, l.streak)
	}
}
