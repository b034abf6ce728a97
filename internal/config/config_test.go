package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onein50million/counter-attack/logging"
)

func TestParseEnvDefaults(t *testing.T) {
	cfg, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.StatsInterval != 5*time.Second {
		t.Fatalf("expected 5s stats interval, got %s", cfg.StatsInterval)
	}
	if cfg.LogLevel != "info" || cfg.SyncTestFrames != 0 || cfg.HTTPAddr != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("COUNTER_ATTACK_HTTP_ADDR", ":9090")
	t.Setenv("COUNTER_ATTACK_LOG_LEVEL", "debug")
	t.Setenv("COUNTER_ATTACK_LOG_JSON", "/tmp/duel.jsonl")
	t.Setenv("COUNTER_ATTACK_STATS_INTERVAL", "2s")
	t.Setenv("ENABLE_PPROF_TRACE", "true")

	cfg, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || !cfg.EnablePprofTrace || cfg.StatsInterval != 2*time.Second {
		t.Fatalf("unexpected env %+v", cfg)
	}
	logCfg := cfg.Logging()
	if logCfg.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("expected debug severity, got %v", logCfg.MinimumSeverity)
	}
	if !logCfg.HasSink("json") || logCfg.JSON.FilePath != "/tmp/duel.jsonl" {
		t.Fatalf("expected json sink, got %+v", logCfg)
	}
}

func TestParseEnvErrors(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":  {"COUNTER_ATTACK_STATS_INTERVAL", "soon"},
		"bad level":     {"COUNTER_ATTACK_LOG_LEVEL", "loud"},
		"negative sync": {"COUNTER_ATTACK_SYNCTEST_FRAMES", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := ParseEnv()
			if err == nil || !strings.Contains(err.Error(), "parse env") {
				t.Fatalf("expected parse env error, got %v", err)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]string{"7000", "127.0.0.1:7001"})
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if args.LocalPort != 7000 || args.Remote.Port != 7001 || !args.Remote.IP.IsLoopback() {
		t.Fatalf("unexpected args %+v", args)
	}
	if args.Player != 0 {
		t.Fatalf("expected lower port to play slot 0, got %d", args.Player)
	}

	args, err = ParseArgs([]string{"7001", "127.0.0.1:7000"})
	if err != nil || args.Player != 1 {
		t.Fatalf("expected higher port to play slot 1, got %+v (%v)", args, err)
	}

	args, err = ParseArgs([]string{"-player", "1", "7000", "10.0.0.2:7000"})
	if err != nil || args.Player != 1 {
		t.Fatalf("expected explicit slot 1, got %+v (%v)", args, err)
	}

	args, err = ParseArgs([]string{"-synctest", "3"})
	if err != nil {
		t.Fatalf("parse synctest args: %v", err)
	}
	if args.SyncTest != 3 || args.Remote != nil {
		t.Fatalf("unexpected synctest args %+v", args)
	}
}

func TestParseArgsRejectsMalformedInput(t *testing.T) {
	cases := map[string][]string{
		"missing remote": {"7000"},
		"extra":          {"7000", "127.0.0.1:7001", "x"},
		"port text":      {"seven", "127.0.0.1:7001"},
		"port range":     {"70000", "127.0.0.1:7001"},
		"no port":        {"7000", "127.0.0.1"},
		"bad flag":       {"-nope", "7000", "127.0.0.1:7001"},
		"same ports":     {"7000", "10.0.0.2:7000"},
		"bad player":     {"-player", "2", "7000", "127.0.0.1:7001"},
	}
	for name, argv := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseArgs(argv); !errors.Is(err, ErrUsage) {
				t.Fatalf("expected ErrUsage, got %v", err)
			}
		})
	}
}

func TestParseTuningKeepsDefaultsForMissingKeys(t *testing.T) {
	tuning, err := ParseTuning([]byte("final_clash_lives: 2\nbase_stamina_loss: 0.25\n"))
	if err != nil {
		t.Fatalf("parse tuning: %v", err)
	}
	want := DefaultTuning()
	want.FinalClashLives = 2
	want.BaseStaminaLoss = 0.25
	if tuning != want {
		t.Fatalf("expected %+v, got %+v", want, tuning)
	}
	if tuning.Clash().Lives != 2 || tuning.Combat().BaseStaminaLoss != 0.25 {
		t.Fatalf("expected derived tunings to follow the file")
	}
}

func TestParseTuningRejects(t *testing.T) {
	cases := map[string]string{
		"zero lives":     "final_clash_lives: 0\n",
		"negative delay": "input_delay: -1\n",
		"zero frame":     "frame_duration: 0\n",
		"loss above one": "base_stamina_loss: 1.5\n",
		"no prediction":  "max_prediction: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseTuning([]byte(doc)); !errors.Is(err, ErrInvalidTuning) {
				t.Fatalf("expected ErrInvalidTuning, got %v", err)
			}
		})
	}
	if _, err := ParseTuning([]byte("lifes: 3\n")); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestLoadTuningFromFile(t *testing.T) {
	if tuning, err := LoadTuning(""); err != nil || tuning != DefaultTuning() {
		t.Fatalf("expected defaults for empty path, got %+v (%v)", tuning, err)
	}

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("clash_length: 0.5\nmax_prediction: 4\n"), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}
	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if tuning.ClashLength != 0.5 || tuning.MaxPrediction != 4 {
		t.Fatalf("unexpected tuning %+v", tuning)
	}
	if _, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestFingerprintTracksSimulationValues(t *testing.T) {
	base := DefaultTuning()
	if base.Fingerprint() != DefaultTuning().Fingerprint() {
		t.Fatalf("expected fingerprint to be stable")
	}
	changed := base
	changed.Attack.BlockGrace = 0.31
	if changed.Fingerprint() == base.Fingerprint() {
		t.Fatalf("expected block grace to change the fingerprint")
	}
	delayed := base
	delayed.InputDelay = 2
	if delayed.Fingerprint() == base.Fingerprint() {
		t.Fatalf("expected input delay to change the fingerprint")
	}
}
