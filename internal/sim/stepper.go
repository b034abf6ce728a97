package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onein50million/counter-attack/internal/clash"
	"github.com/onein50million/counter-attack/internal/combat"
	"github.com/onein50million/counter-attack/internal/event"
	"github.com/onein50million/counter-attack/internal/frame"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/state"
	"github.com/onein50million/counter-attack/logging"
	logclash "github.com/onein50million/counter-attack/logging/clash"
	logcombat "github.com/onein50million/counter-attack/logging/combat"
	lognetwork "github.com/onein50million/counter-attack/logging/network"
	logrollback "github.com/onein50million/counter-attack/logging/rollback"
	"github.com/onein50million/counter-attack/logging/simulation"
)

var (
	// ErrFrameMismatch is returned when a save or advance request names a
	// frame other than the live one.
	ErrFrameMismatch = errors.New("sim: request frame does not match live frame")
	// ErrPeerDisconnected is returned when the session hands over an input
	// from a disconnected peer.
	ErrPeerDisconnected = errors.New("sim: peer disconnected")
	// ErrMissingSnapshot is returned when a load request's cell holds no
	// snapshot for the requested frame.
	ErrMissingSnapshot = errors.New("sim: no snapshot for load request")
	// ErrLoadAhead is returned when a load request targets a frame the live
	// state has not reached.
	ErrLoadAhead = errors.New("sim: load request ahead of live frame")
)

// seenWindow bounds how many frames of surfaced event keys are remembered.
const seenWindow = 64

// Config tunes the stepper.
type Config struct {
	Timebase frame.Timebase
	Combat   combat.Tuning
	Clash    clash.Tuning
	// Viewer is the player whose presentation receives events. It defaults
	// to the session's first local handle.
	Viewer *state.Handle
	// StallThreshold is how far past the one-frame window the tick pump may
	// fall before a stall is reported. Zero means half a frame.
	StallThreshold time.Duration
}

// DefaultConfig returns the stock tuning at the default frame rate.
func DefaultConfig() Config {
	return Config{
		Timebase: frame.NewTimebase(frame.DefaultFrameDuration),
		Combat:   combat.DefaultTuning(),
		Clash:    clash.DefaultTuning(),
	}
}

// TickResult reports what one real-time tick did.
type TickResult struct {
	// StartFrame and Frame are the live frame before and after the tick.
	StartFrame uint64
	Frame      uint64
	GameState  state.GameState
	// Events are the newly surfaced notifications visible to the viewer.
	Events        []event.Event
	SessionEvents []rollback.SessionEvent
	Requests      int
	Rollbacks     int
	// Skipped names the session condition that prevented advancing.
	Skipped   string
	Throttled bool
	Stall     time.Duration
	Duration  time.Duration
	Budget    time.Duration
}

// PlayerStatus is the presentation view of one player.
type PlayerStatus struct {
	Stamina         float64 `json:"stamina"`
	Lives           uint8   `json:"lives"`
	Attacking       bool    `json:"attacking"`
	LastDefendDelta float64 `json:"lastDefendDelta"`
}

// Status is an immutable copy of the stepper's live state for diagnostics.
type Status struct {
	Frame       uint64                          `json:"frame"`
	GameState   state.GameState                 `json:"gameState"`
	Players     [state.PlayerCount]PlayerStatus `json:"players"`
	Fingerprint uint64                          `json:"fingerprint"`
	Rollbacks   uint64                          `json:"rollbacks"`
	Stalls      uint64                          `json:"stalls"`
	Skipped     uint64                          `json:"skipped"`
}

// Stepper owns the live world and executes the requests a rollback session
// hands it. It is not safe for concurrent use; the tick loop goroutine is its
// only caller.
type Stepper struct {
	cfg     Config
	deps    Deps
	session rollback.Session
	clock   *frame.Clock
	combat  *combat.Resolver
	clash   *clash.Resolver
	local   []state.Handle
	viewer  state.Handle

	world   state.World
	frame   uint64
	intents [state.PlayerCount]frame.FrameOffset
	seen    map[uint64][]event.Event

	rollbacks uint64
	stalls    uint64
	skipped   uint64
}

// NewStepper binds a session to a fresh match.
func NewStepper(session rollback.Session, cfg Config, deps Deps) (*Stepper, error) {
	if session == nil {
		return nil, errors.New("sim: session is required")
	}
	local := session.LocalHandles()
	if len(local) == 0 {
		return nil, errors.New("sim: session has no local players")
	}
	if cfg.Timebase.FrameDuration <= 0 {
		cfg.Timebase = frame.NewTimebase(frame.DefaultFrameDuration)
	}
	if cfg.Clash.Lives == 0 {
		cfg.Clash = clash.DefaultTuning()
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = cfg.Timebase.Duration() / 2
	}
	deps = deps.withDefaults()

	viewer := local[0]
	if cfg.Viewer != nil {
		viewer = *cfg.Viewer
	}

	s := &Stepper{
		cfg:     cfg,
		deps:    deps,
		session: session,
		clock:   frame.NewClock(cfg.Timebase, deps.Clock),
		combat:  combat.NewResolver(cfg.Timebase, cfg.Combat),
		clash:   clash.NewResolver(cfg.Timebase, cfg.Clash),
		local:   append([]state.Handle(nil), local...),
		viewer:  viewer,
		world:   state.NewWorld(cfg.Clash.Lives),
		seen:    make(map[uint64][]event.Event),
	}
	for i := range s.intents {
		s.intents[i] = frame.Invalid()
	}
	return s, nil
}

// Viewer reports the player events are filtered for.
func (s *Stepper) Viewer() state.Handle {
	return s.viewer
}

// Frame reports the live frame.
func (s *Stepper) Frame() uint64 {
	return s.frame
}

// World returns a copy of the live world.
func (s *Stepper) World() state.World {
	return s.world.Clone()
}

// Now is the frame clock's estimate of the present.
func (s *Stepper) Now() frame.FrameOffset {
	return s.clock.Now()
}

// Attack registers an attack intent for a local player at the current frame
// clock instant. It reports false when h is not local, an attack was already
// registered this tick, or h's previous attack has not recovered.
func (s *Stepper) Attack(h state.Handle) bool {
	if !s.isLocal(h) || s.intents[h].IsValid() {
		return false
	}
	now := s.clock.Now()
	if !s.world.Players[h].Recovered(now) {
		return false
	}
	s.intents[h] = now
	return true
}

func (s *Stepper) isLocal(h state.Handle) bool {
	for _, l := range s.local {
		if l == h {
			return true
		}
	}
	return false
}

// Status snapshots the live state.
func (s *Stepper) Status() Status {
	status := Status{
		Frame:       s.frame,
		GameState:   s.world.GameState,
		Fingerprint: state.Fingerprint(s.world),
		Rollbacks:   s.rollbacks,
		Stalls:      s.stalls,
		Skipped:     s.skipped,
	}
	for i, p := range s.world.Players {
		status.Players[i] = PlayerStatus{
			Stamina:         p.Stamina.Float(),
			Lives:           p.FinalClashLives,
			Attacking:       p.Attacking(),
			LastDefendDelta: p.LastDefendResult.Float(),
		}
	}
	return status
}

// Tick performs one real-time tick: service the network, submit local input,
// throttle when ahead of the peer, then execute every request the session
// returns. Errors are fatal to the match.
func (s *Stepper) Tick(ctx context.Context) (TickResult, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "sim.tick", trace.WithAttributes(attribute.Int64("frame", int64(s.frame))))
	defer span.End()

	result := TickResult{StartFrame: s.frame, Frame: s.frame, GameState: s.world.GameState}
	result.Stall = s.checkStall(ctx)

	s.session.PollRemote()
	result.SessionEvents = s.session.Events()
	s.reportSessionEvents(ctx, result.SessionEvents)

	for _, h := range s.local {
		input := rollback.Input{Attacking: s.intents[h]}
		s.intents[h] = frame.Invalid()
		if err := s.session.AddLocalInput(h, input); err != nil {
			if reason, ok := skipReason(err); ok {
				return s.skip(ctx, result, reason), nil
			}
			return s.fail(span, result, fmt.Errorf("add input for player %s: %w", h, err))
		}
	}

	if s.session.FramesAhead() > 0 {
		result.Throttled = true
		s.deps.Metrics.Add("sim.throttled", 1)
		if err := s.deps.Sleep(ctx, s.cfg.Timebase.Duration()); err != nil {
			return s.fail(span, result, err)
		}
	}

	requests, err := s.session.AdvanceFrame()
	if err != nil {
		if reason, ok := skipReason(err); ok {
			return s.skip(ctx, result, reason), nil
		}
		return s.fail(span, result, fmt.Errorf("advance session: %w", err))
	}
	result.Requests = len(requests)
	for _, req := range requests {
		if err := s.execute(ctx, req, &result); err != nil {
			return s.fail(span, result, err)
		}
	}

	s.pruneSeen()
	result.Frame = s.frame
	result.GameState = s.world.GameState
	s.deps.Metrics.Store("sim.frame", s.frame)
	span.SetAttributes(
		attribute.Int("requests", result.Requests),
		attribute.Int("rollbacks", result.Rollbacks),
		attribute.String("game_state", s.world.GameState.String()),
	)
	return result, nil
}

func (s *Stepper) fail(span trace.Span, result TickResult, err error) (TickResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	result.Frame = s.frame
	result.GameState = s.world.GameState
	return result, err
}

func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, rollback.ErrPredictionThreshold):
		return "prediction_threshold", true
	case errors.Is(err, rollback.ErrNotSynchronized):
		return "not_synchronized", true
	default:
		return "", false
	}
}

func (s *Stepper) skip(ctx context.Context, result TickResult, reason string) TickResult {
	s.skipped++
	s.clock.Reanchor(s.frame)
	s.deps.Metrics.Add("sim.ticks_skipped", 1)
	simulation.TickSkipped(ctx, s.deps.Publisher, s.frame, simulation.TickSkippedPayload{Reason: reason}, nil)
	result.Skipped = reason
	return result
}

func (s *Stepper) checkStall(ctx context.Context) time.Duration {
	stall := s.clock.Stall()
	if stall <= s.cfg.StallThreshold {
		return 0
	}
	s.stalls++
	s.deps.Metrics.Add("sim.clock_stalls", 1)
	simulation.ClockStall(ctx, s.deps.Publisher, s.frame, simulation.ClockStallPayload{StallMillis: stall.Milliseconds()}, nil)
	return stall
}

func (s *Stepper) execute(ctx context.Context, req rollback.Request, result *TickResult) error {
	switch r := req.(type) {
	case rollback.SaveState:
		if r.Frame != s.frame {
			logrollback.SaveMismatch(ctx, s.deps.Publisher, s.frame, logging.SessionRef(uint8(s.viewer)), logrollback.SaveMismatchPayload{Requested: r.Frame, Live: s.frame}, nil)
			return fmt.Errorf("%w: save %d, live %d", ErrFrameMismatch, r.Frame, s.frame)
		}
		r.Cell.Save(s.frame, state.Capture(s.frame, s.world))
	case rollback.LoadState:
		snap, ok := r.Cell.Load()
		if !ok || snap.Frame != r.Frame {
			return fmt.Errorf("%w: frame %d", ErrMissingSnapshot, r.Frame)
		}
		if r.Frame > s.frame {
			return fmt.Errorf("%w: load %d, live %d", ErrLoadAhead, r.Frame, s.frame)
		}
		world, err := snap.Restore()
		if err != nil {
			return fmt.Errorf("load frame %d: %w", r.Frame, err)
		}
		depth := s.frame - r.Frame
		logrollback.Rollback(ctx, s.deps.Publisher, r.Frame, logging.SessionRef(uint8(s.viewer)), logrollback.RollbackPayload{From: s.frame, To: r.Frame, Depth: depth}, nil)
		s.rollbacks++
		s.deps.Metrics.Add("sim.rollbacks", 1)
		s.deps.Metrics.Add("sim.rollback_frames", depth)
		result.Rollbacks++

		s.world = world
		s.frame = r.Frame
		s.clock.Reanchor(r.Frame)
	case rollback.AdvanceFrame:
		if r.Frame != s.frame {
			return fmt.Errorf("%w: advance %d, live %d", ErrFrameMismatch, r.Frame, s.frame)
		}
		var inputs [state.PlayerCount]frame.FrameOffset
		for i, in := range r.Inputs {
			if in.Status == rollback.Disconnected {
				return fmt.Errorf("%w: player %d at frame %d", ErrPeerDisconnected, i, r.Frame)
			}
			inputs[i] = in.Input.Attacking
		}
		events, err := s.advance(inputs)
		if err != nil {
			return err
		}
		s.surface(ctx, events, result)
	default:
		return fmt.Errorf("sim: unknown request %T", req)
	}
	return nil
}

// advance simulates the live frame. The resolvers see the frame's end as
// "now" so a replay produces the same result as the first run.
func (s *Stepper) advance(inputs [state.PlayerCount]frame.FrameOffset) ([]event.Event, error) {
	now := frame.At(s.frame + 1)
	var (
		events []event.Event
		err    error
	)
	switch s.world.GameState {
	case state.Playing:
		events, err = s.combat.Resolve(&s.world, inputs, now, s.frame)
	case state.FinalClash:
		events, err = s.clash.Resolve(&s.world, inputs, now, s.frame)
	}
	if err != nil {
		return nil, fmt.Errorf("advance frame %d: %w", s.frame, err)
	}
	s.frame++
	s.clock.Reanchor(s.frame)
	return events, nil
}

// surface publishes each event the first time its frame produces it. A
// resimulated frame that reproduces an event does not surface it again; one
// that produces a new event, or the same kind with a different result, does.
func (s *Stepper) surface(ctx context.Context, events []event.Event, result *TickResult) {
	for _, e := range events {
		f := e.FrameNumber()
		if containsEvent(s.seen[f], e) {
			continue
		}
		s.seen[f] = append(s.seen[f], e)
		s.publish(ctx, e)
		if event.Visible(e, s.viewer) {
			result.Events = append(result.Events, e)
		}
	}
}

func containsEvent(seen []event.Event, e event.Event) bool {
	for _, prior := range seen {
		if sameEvent(prior, e) {
			return true
		}
	}
	return false
}

// sameEvent compares events by value, following optional loser pointers.
func sameEvent(a, b event.Event) bool {
	switch x := a.(type) {
	case event.ClashEvent:
		y, ok := b.(event.ClashEvent)
		return ok && x.Frame == y.Frame && sameHandle(x.Loser, y.Loser)
	case event.GameOverEvent:
		y, ok := b.(event.GameOverEvent)
		return ok && x.Frame == y.Frame && sameHandle(x.Loser, y.Loser)
	default:
		return a == b
	}
}

func sameHandle(a, b *state.Handle) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Stepper) pruneSeen() {
	if s.frame < seenWindow {
		return
	}
	floor := s.frame - seenWindow
	for f := range s.seen {
		if f < floor {
			delete(s.seen, f)
		}
	}
}

func loserSlot(h *state.Handle) *uint8 {
	if h == nil {
		return nil
	}
	slot := uint8(*h)
	return &slot
}

func (s *Stepper) publish(ctx context.Context, e event.Event) {
	pub := s.deps.Publisher
	switch ev := e.(type) {
	case event.BlockEvent:
		logcombat.Block(ctx, pub, ev.Frame, logging.PlayerRef(uint8(ev.Player)), logcombat.BlockPayload{
			Label:   ev.Label,
			Quality: ev.Quality,
			Delta:   ev.Delta,
			Stamina: s.world.Players[ev.Player].Stamina.Float(),
		}, nil)
	case event.HitEvent:
		logcombat.Hit(ctx, pub, ev.Frame, logging.PlayerRef(uint8(ev.Attacker)), logging.PlayerRef(uint8(ev.Victim)), logcombat.HitPayload{
			Stamina: s.world.Players[ev.Victim].Stamina.Float(),
		}, nil)
	case event.StaminaDepletedEvent:
		logcombat.StaminaDepleted(ctx, pub, ev.Frame, logging.PlayerRef(uint8(ev.Player)), nil)
	case event.FinalClashStartedEvent:
		logclash.FinalClashStarted(ctx, pub, ev.Frame, logclash.StartedPayload{Lives: s.cfg.Clash.Lives}, nil)
	case event.ClashEvent:
		logclash.BoutResolved(ctx, pub, ev.Frame, logclash.BoutPayload{Loser: loserSlot(ev.Loser)}, nil)
	case event.FinalClashLifeLostEvent:
		logclash.LifeLost(ctx, pub, ev.Frame, logging.PlayerRef(uint8(ev.Player)), logclash.LifeLostPayload{Remaining: ev.Remaining}, nil)
	case event.GameOverEvent:
		s.deps.Metrics.Add("sim.matches_finished", 1)
		simulation.GameOver(ctx, pub, ev.Frame, simulation.GameOverPayload{
			Loser:   loserSlot(ev.Loser),
			Outcome: string(ev.Outcome(s.viewer)),
		}, nil)
	}
}

func (s *Stepper) reportSessionEvents(ctx context.Context, events []rollback.SessionEvent) {
	pub := s.deps.Publisher
	for _, ev := range events {
		actor := logging.PlayerRef(uint8(ev.Handle))
		switch ev.Kind {
		case rollback.EventSynchronizing:
			lognetwork.Synchronizing(ctx, pub, s.frame, actor, lognetwork.SynchronizingPayload{Count: ev.Count, Total: ev.Total}, nil)
		case rollback.EventSynchronized:
			s.clock.Reanchor(s.frame)
			lognetwork.Synchronized(ctx, pub, s.frame, actor, nil)
		case rollback.EventNetworkInterrupted:
			lognetwork.Interrupted(ctx, pub, s.frame, actor, lognetwork.InterruptedPayload{DisconnectTimeoutMillis: ev.Timeout.Milliseconds()}, nil)
		case rollback.EventNetworkResumed:
			lognetwork.Resumed(ctx, pub, s.frame, actor, nil)
		case rollback.EventDisconnected:
			lognetwork.Disconnected(ctx, pub, s.frame, actor, nil)
		case rollback.EventDesyncDetected:
			s.deps.Metrics.Add("sim.desyncs", 1)
			s.deps.Logger.Printf("desync on frame %d: local %016x remote %016x", ev.Frame, ev.LocalChecksum, ev.RemoteChecksum)
			logrollback.Desync(ctx, pub, ev.Frame, actor, logrollback.DesyncPayload{Local: ev.LocalChecksum, Remote: ev.RemoteChecksum}, nil)
		}
	}
}
