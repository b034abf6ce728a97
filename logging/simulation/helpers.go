package simulation

import (
	"context"

	"github.com/onein50million/counter-attack/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a tick takes longer than a frame.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventClockStall is emitted when the tick pump falls behind the frame
	// clock far enough that Now() was clamped.
	EventClockStall logging.EventType = "simulation.clock_stall"
	// EventGameOver is emitted once per match outcome.
	EventGameOver logging.EventType = "simulation.game_over"
	// EventTickSkipped is emitted when the session refuses to advance.
	EventTickSkipped logging.EventType = "simulation.tick_skipped"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

type ClockStallPayload struct {
	StallMillis int64 `json:"stallMillis"`
}

// GameOverPayload carries the losing slot, or nil on a tie.
type GameOverPayload struct {
	Loser   *uint8 `json:"loser,omitempty"`
	Outcome string `json:"outcome"`
}

type TickSkippedPayload struct {
	Reason string `json:"reason"`
}

// TickBudgetOverrun publishes a warning when the simulation exceeds the configured tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, frame uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

func ClockStall(ctx context.Context, pub logging.Publisher, frame uint64, payload ClockStallPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClockStall,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

func GameOver(ctx context.Context, pub logging.Publisher, frame uint64, payload GameOverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGameOver,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

func TickSkipped(ctx context.Context, pub logging.Publisher, frame uint64, payload TickSkippedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickSkipped,
		Frame:    frame,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}
