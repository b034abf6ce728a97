package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/onein50million/counter-attack/internal/config"
	servernet "github.com/onein50million/counter-attack/internal/net"
	"github.com/onein50million/counter-attack/internal/net/proto"
	"github.com/onein50million/counter-attack/internal/observability"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/sim"
	"github.com/onein50million/counter-attack/internal/state"
	"github.com/onein50million/counter-attack/internal/telemetry"
	"github.com/onein50million/counter-attack/logging"
	lognetwork "github.com/onein50million/counter-attack/logging/network"
	loggingSinks "github.com/onein50million/counter-attack/logging/sinks"
)

const shutdownTimeout = 2 * time.Second

type Config struct {
	Logger telemetry.Logger
	Env    config.Env
	Args   config.Args
	// Stdin supplies attack intents, one per line. Nil disables it.
	Stdin io.Reader
	// Console receives the console log sink. Defaults to os.Stdout.
	Console io.Writer
	// Socket replaces the UDP socket for network play.
	Socket rollback.Socket
}

// diagnostics is the /diagnostics match payload.
type diagnostics struct {
	MatchID   string                 `json:"matchId"`
	Mode      string                 `json:"mode"`
	Local     state.Handle           `json:"local"`
	Sim       *sim.Status            `json:"sim,omitempty"`
	Network   *rollback.NetworkStats `json:"network,omitempty"`
	Logging   logging.RouterStats    `json:"logging"`
	Telemetry map[string]uint64      `json:"telemetry"`
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	tuning := config.DefaultTuning()
	if cfg.Env.TuningFile != "" {
		loaded, err := config.LoadTuning(cfg.Env.TuningFile)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	matchID := uuid.NewString()
	syncTest := cfg.Env.SyncTestFrames
	if cfg.Args.SyncTest > 0 {
		syncTest = cfg.Args.SyncTest
	}
	mode := "p2p"
	if syncTest > 0 {
		mode = "synctest"
	}

	logConfig := cfg.Env.Logging()
	logConfig.Fields = map[string]any{"match": matchID, "mode": mode}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(console),
	}
	if logConfig.HasSink("json") {
		jsonSink, err := loggingSinks.OpenJSONFile(logConfig.JSON.FilePath, logConfig.JSON.FlushInterval)
		if err != nil {
			return fmt.Errorf("failed to open json log sink: %w", err)
		}
		sinks["json"] = jsonSink
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	tracing, err := observability.SetupTracing(ctx, observability.Config{
		EnablePprofTrace: cfg.Env.EnablePprofTrace,
		OTelEndpoint:     cfg.Env.OTelEndpoint,
		ServiceName:      "counter-attack",
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := tracing.Shutdown(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to shut down tracing: %v", cerr)
		}
	}()

	local := cfg.Args.Player
	var session rollback.Session
	if syncTest > 0 {
		session, err = rollback.NewSyncTestSession(syncTest)
		if err != nil {
			return err
		}
		local = 0
	} else {
		socket := cfg.Socket
		if socket == nil {
			udp, err := rollback.ListenUDP(cfg.Args.LocalPort, cfg.Args.Remote)
			if err != nil {
				return err
			}
			socket = udp
		}
		p2p, err := rollback.NewP2PSession(rollback.P2PConfig{
			LocalHandle:   local,
			InputDelay:    tuning.InputDelay,
			MaxPrediction: tuning.MaxPrediction,
			ConfigTag:     tuning.Fingerprint(),
			FrameDuration: tuning.Timebase().Duration(),
		}, socket)
		if err != nil {
			socket.Close()
			return err
		}
		session = p2p
	}
	defer session.Close()

	simConfig := sim.Config{
		Timebase: tuning.Timebase(),
		Combat:   tuning.Combat(),
		Clash:    tuning.Clash(),
		Viewer:   &local,
	}
	stepper, err := sim.NewStepper(session, simConfig, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetry.WrapMetrics(router.Metrics()),
		Publisher: router,
		Clock:     logging.SystemClock{},
		Tracer:    tracing.Tracer("counter-attack/sim"),
	})
	if err != nil {
		return err
	}

	feed := servernet.NewFeed(servernet.DefaultFeedBuffer)
	defer feed.Close()

	var (
		status  atomic.Pointer[sim.Status]
		network atomic.Pointer[rollback.NetworkStats]
	)
	initial := stepper.Status()
	status.Store(&initial)

	remote := local.Opponent()
	var lastStats time.Time
	afterStep := func(result sim.TickResult) {
		current := stepper.Status()
		status.Store(&current)

		for _, ev := range result.SessionEvents {
			broadcast(feed, telemetryLogger, proto.NewSessionMessage(matchID, ev))
		}
		for _, ev := range result.Events {
			broadcast(feed, telemetryLogger, proto.NewEventMessage(matchID, local, ev))
		}
		broadcast(feed, telemetryLogger, proto.NewStatusMessage(matchID, current))

		if syncTest > 0 || cfg.Env.StatsInterval <= 0 {
			return
		}
		if now := time.Now(); now.Sub(lastStats) >= cfg.Env.StatsInterval {
			lastStats = now
			reportNetworkStats(ctx, session, router, remote, result.Frame, &network)
		}
	}

	intents := make(chan state.Handle, 8)
	loop := sim.NewLoop(stepper, intents, sim.LoopHooks{AfterStep: afterStep})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer feed.Close()
		if err := loop.Run(gctx); err != nil {
			return fmt.Errorf("simulation stopped: %w", err)
		}
		return nil
	})

	if cfg.Stdin != nil {
		lines := scanLines(gctx, cfg.Stdin)
		g.Go(func() error {
			return forwardIntents(gctx, lines, intents, local, syncTest > 0)
		})
	}

	httpAddr := cfg.Env.HTTPAddr
	if cfg.Args.HTTPAddr != "" {
		httpAddr = cfg.Args.HTTPAddr
	}
	if httpAddr != "" {
		handler := servernet.NewHTTPHandler(feed, servernet.HTTPHandlerConfig{
			Logger:           fallbackLogger,
			Intents:          intents,
			Local:            local,
			EnablePprofTrace: cfg.Env.EnablePprofTrace,
			Diagnostics: func() any {
				return diagnostics{
					MatchID:   matchID,
					Mode:      mode,
					Local:     local,
					Sim:       status.Load(),
					Network:   network.Load(),
					Logging:   router.Stats(),
					Telemetry: router.Metrics().Snapshot(),
				}
			},
		})
		srv := &http.Server{Addr: httpAddr, Handler: handler}
		telemetryLogger.Printf("diagnostics listening on %s", srv.Addr)

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	telemetryLogger.Printf("match %s starting in %s mode as player %d", matchID, mode, local)
	return g.Wait()
}

func broadcast(feed *servernet.Feed, logger telemetry.Logger, msg any) {
	data, err := proto.Encode(msg)
	if err != nil {
		logger.Printf("failed to encode feed message: %v", err)
		return
	}
	feed.Publish(data)
}

func reportNetworkStats(ctx context.Context, session rollback.Session, pub logging.Publisher, remote state.Handle, frame uint64, store *atomic.Pointer[rollback.NetworkStats]) {
	stats, err := session.NetworkStats(remote)
	if err != nil {
		return
	}
	store.Store(&stats)
	lognetwork.Stats(ctx, pub, frame, logging.SessionRef(uint8(remote)), lognetwork.StatsPayload{
		PingMillis:         stats.Ping.Milliseconds(),
		SendQueueLen:       stats.SendQueueLen,
		KbpsSent:           stats.KbpsSent,
		LocalFramesBehind:  int(stats.LocalFramesBehind),
		RemoteFramesBehind: int(stats.RemoteFramesBehind),
	}, nil)
}

// scanLines reads r on its own goroutine until EOF or ctx is done. A read
// already blocked in r cannot be interrupted; the goroutine exits once it
// returns.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// forwardIntents turns each input line into an attack. In a sync test the
// line "1" swings for the second player.
func forwardIntents(ctx context.Context, lines <-chan string, intents chan<- state.Handle, local state.Handle, both bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handle := local
			if both && strings.TrimSpace(line) == "1" {
				handle = local.Opponent()
			}
			select {
			case intents <- handle:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
