package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onein50million/counter-attack/internal/config"
	"github.com/onein50million/counter-attack/internal/rollback"
	"github.com/onein50million/counter-attack/internal/state"
	"github.com/onein50million/counter-attack/internal/telemetry"
)

func quietLogger() telemetry.Logger {
	return telemetry.LoggerFunc(func(string, ...any) {})
}

func fastTuningFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("frame_duration: 0.01\n"), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}
	return path
}

func TestRunSyncTestUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var console bytes.Buffer
	err := Run(ctx, Config{
		Logger:  quietLogger(),
		Env:     config.Env{TuningFile: fastTuningFile(t), LogLevel: "debug", SyncTestFrames: 2},
		Stdin:   strings.NewReader("\n1\n"),
		Console: &console,
	})
	if err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestRunRejectsBadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("final_clash_lives: 0\n"), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}
	err := Run(context.Background(), Config{
		Logger: quietLogger(),
		Env:    config.Env{TuningFile: path, LogLevel: "info", SyncTestFrames: 1},
	})
	if !errors.Is(err, config.ErrInvalidTuning) {
		t.Fatalf("expected ErrInvalidTuning, got %v", err)
	}
}

func TestRunWritesJSONLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	err := Run(ctx, Config{
		Logger:  quietLogger(),
		Env:     config.Env{TuningFile: fastTuningFile(t), LogLevel: "debug", LogJSON: logPath, SyncTestFrames: 2},
		Console: &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected json log file, got %v", err)
	}
}

func TestRunPeersOverMemorySockets(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	a, b := rollback.NewMemoryPair()
	tuning := fastTuningFile(t)
	errs := make(chan error, 2)
	for i, socket := range []rollback.Socket{a, b} {
		player := state.Handle(i)
		go func() {
			errs <- Run(ctx, Config{
				Logger:  quietLogger(),
				Env:     config.Env{TuningFile: tuning, LogLevel: "info", StatsInterval: 50 * time.Millisecond},
				Args:    config.Args{Player: player},
				Console: &bytes.Buffer{},
				Socket:  socket,
			})
		}()
	}
	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("expected both peers to stop cleanly, got %v", err)
		}
	}
}

func TestForwardIntents(t *testing.T) {
	lines := make(chan string, 3)
	lines <- ""
	lines <- "1"
	lines <- "x"
	close(lines)

	intents := make(chan state.Handle, 3)
	if err := forwardIntents(context.Background(), lines, intents, 0, true); err != nil {
		t.Fatalf("forward intents: %v", err)
	}
	want := []state.Handle{0, 1, 0}
	for i, h := range want {
		if got := <-intents; got != h {
			t.Fatalf("intent %d: expected %d, got %d", i, h, got)
		}
	}

	single := make(chan string, 1)
	single <- "1"
	close(single)
	if err := forwardIntents(context.Background(), single, intents, 1, false); err != nil {
		t.Fatalf("forward intents: %v", err)
	}
	if got := <-intents; got != 1 {
		t.Fatalf("expected network play to swing for the local player, got %d", got)
	}
}

func TestScanLinesStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := scanLines(ctx, strings.NewReader("a\nb\nc\n"))
	if got := <-lines; got != "a" {
		t.Fatalf("expected first line, got %q", got)
	}
	cancel()
	// Nobody reads while the scanner notices the cancellation.
	time.Sleep(50 * time.Millisecond)

	select {
	case line, open := <-lines:
		if open {
			t.Fatalf("expected channel closed after cancellation, got line %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected scanner to close its channel after cancellation")
	}
}
