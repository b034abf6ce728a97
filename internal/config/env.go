package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/onein50million/counter-attack/logging"
)

// Env is the process configuration read from the environment.
type Env struct {
	// HTTPAddr serves diagnostics and the event feed; empty disables it.
	HTTPAddr   string `env:"COUNTER_ATTACK_HTTP_ADDR"`
	TuningFile string `env:"COUNTER_ATTACK_TUNING_FILE"`
	// LogJSON enables the newline-delimited JSON sink at this path.
	LogJSON  string `env:"COUNTER_ATTACK_LOG_JSON"`
	LogLevel string `env:"COUNTER_ATTACK_LOG_LEVEL" envDefault:"info"`
	// SyncTestFrames runs a local determinism check with this rewind
	// distance instead of a network match.
	SyncTestFrames   int           `env:"COUNTER_ATTACK_SYNCTEST_FRAMES" envDefault:"0"`
	StatsInterval    time.Duration `env:"COUNTER_ATTACK_STATS_INTERVAL"  envDefault:"5s"`
	OTelEndpoint     string        `env:"COUNTER_ATTACK_OTEL_ENDPOINT"`
	EnablePprofTrace bool          `env:"ENABLE_PPROF_TRACE"`
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if _, ok := logging.ParseSeverity(cfg.LogLevel); !ok {
		return Env{}, fmt.Errorf("parse env: unknown log level %q", cfg.LogLevel)
	}
	if cfg.SyncTestFrames < 0 {
		return Env{}, fmt.Errorf("parse env: synctest frames must not be negative, got %d", cfg.SyncTestFrames)
	}
	return cfg, nil
}

// Logging builds the router configuration the environment asks for.
func (e Env) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity, _ = logging.ParseSeverity(e.LogLevel)
	if e.LogJSON != "" {
		cfg.EnabledSinks = append(cfg.EnabledSinks, "json")
		cfg.JSON.FilePath = e.LogJSON
	}
	return cfg
}
