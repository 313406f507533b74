// Package config loads process configuration the way the teacher's CLI
// layer does: flag defaults overlaid by an optional TOML file, assembled
// through functional options, and validated with a multierror so every
// problem is reported at once instead of one-at-a-time.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

// Config is the fully-resolved set of knobs the process needs to start.
type Config struct {
	ListenAddr     string        `toml:"listen_addr"`
	MetricsAddr    string        `toml:"metrics_addr"`
	InitialClock   time.Duration `toml:"initial_clock"`
	LowTimeBonus   time.Duration `toml:"low_time_bonus"`
	LowTimeCutoff  time.Duration `toml:"low_time_cutoff"`
	VoteDuration   time.Duration `toml:"vote_duration"`
	DisconnectGrace time.Duration `toml:"disconnect_grace"`
	EngineBinary   string        `toml:"engine_binary"`
	EngineDepth    int           `toml:"engine_depth"`
	EngineTimeout  time.Duration `toml:"engine_timeout"`
	ChatHistory    int           `toml:"chat_history"`
	LogLevel       string        `toml:"log_level"`
	LogJSON        bool          `toml:"log_json"`
}

// Option mutates a Config during assembly.
type Option func(*Config)

// Default returns the out-of-the-box configuration, matching spec.md §6
// defaults (10-minute clocks, 20s votes, 20s disconnect grace, depth-15
// engine, 60s low-time cutoff, 20s engine watchdog).
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		MetricsAddr:     "127.0.0.1:9090",
		InitialClock:    10 * time.Minute,
		LowTimeBonus:    10 * time.Second,
		LowTimeCutoff:   60 * time.Second,
		VoteDuration:    20 * time.Second,
		DisconnectGrace: 20 * time.Second,
		EngineBinary:    "stockfish",
		EngineDepth:     15,
		EngineTimeout:   20 * time.Second,
		ChatHistory:     200,
		LogLevel:        "info",
		LogJSON:         false,
	}
}

// WithListenAddr overrides the websocket/HTTP listen address.
func WithListenAddr(addr string) Option { return func(c *Config) { c.ListenAddr = addr } }

// WithMetricsAddr overrides the Prometheus listen address.
func WithMetricsAddr(addr string) Option { return func(c *Config) { c.MetricsAddr = addr } }

// WithEngine overrides the chess engine binary, search depth, and watchdog.
func WithEngine(binary string, depth int, timeout time.Duration) Option {
	return func(c *Config) {
		c.EngineBinary = binary
		c.EngineDepth = depth
		c.EngineTimeout = timeout
	}
}

// WithLogging overrides the log level and format.
func WithLogging(level string, jsonFormat bool) Option {
	return func(c *Config) {
		c.LogLevel = level
		c.LogJSON = jsonFormat
	}
}

// FromFile overlays path's TOML contents onto base. Missing fields in the
// file leave base's values untouched.
func FromFile(base Config, path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return base, fmt.Errorf("reading config file: %w", err)
	}
	if _, err := toml.DecodeFile(path, &base); err != nil {
		return base, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return base, nil
}

// New assembles a Config from Default(), applying opts in order.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate reports every configuration problem at once, the way the
// teacher's reshare/dkg validation paths accumulate a go-multierror
// instead of failing on the first bad field.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("listen_addr must not be empty"))
	}
	if c.InitialClock <= 0 {
		result = multierror.Append(result, fmt.Errorf("initial_clock must be positive, got %s", c.InitialClock))
	}
	if c.LowTimeCutoff < 0 {
		result = multierror.Append(result, fmt.Errorf("low_time_cutoff must not be negative"))
	}
	if c.VoteDuration <= 0 {
		result = multierror.Append(result, fmt.Errorf("vote_duration must be positive, got %s", c.VoteDuration))
	}
	if c.DisconnectGrace <= 0 {
		result = multierror.Append(result, fmt.Errorf("disconnect_grace must be positive, got %s", c.DisconnectGrace))
	}
	if c.EngineBinary == "" {
		result = multierror.Append(result, fmt.Errorf("engine_binary must not be empty"))
	}
	if c.EngineDepth <= 0 {
		result = multierror.Append(result, fmt.Errorf("engine_depth must be positive, got %d", c.EngineDepth))
	}
	if c.EngineTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("engine_timeout must be positive, got %s", c.EngineTimeout))
	}
	if c.ChatHistory < 0 {
		result = multierror.Append(result, fmt.Errorf("chat_history must not be negative"))
	}
	return result.ErrorOrNil()
}
