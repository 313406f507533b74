package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestNewAppliesOptionsOverDefault(t *testing.T) {
	cfg := New(
		WithListenAddr(":9999"),
		WithEngine("custom-engine", 20, 5*time.Second),
		WithLogging("debug", true),
	)
	if cfg.ListenAddr != ":9999" {
		t.Errorf("expected overridden listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.EngineBinary != "custom-engine" || cfg.EngineDepth != 20 {
		t.Errorf("expected overridden engine settings, got %+v", cfg)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Errorf("expected overridden logging settings, got %+v", cfg)
	}
	if cfg.VoteDuration != Default().VoteDuration {
		t.Errorf("options not touching vote_duration should leave the default, got %s", cfg.VoteDuration)
	}
}

func TestValidateAccumulatesEveryError(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a zero-value config to be invalid")
	}
	msg := err.Error()
	for _, want := range []string{"listen_addr", "initial_clock", "vote_duration", "disconnect_grace", "engine_binary", "engine_depth", "engine_timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected validation error to mention %q, got: %s", want, msg)
		}
	}
}

func TestFromFileOverlaysOnlyPresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teamchess.toml")
	contents := `listen_addr = ":7000"
engine_depth = 18
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := FromFile(Default(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("expected listen_addr overlaid, got %q", cfg.ListenAddr)
	}
	if cfg.EngineDepth != 18 {
		t.Errorf("expected engine_depth overlaid, got %d", cfg.EngineDepth)
	}
	if cfg.MetricsAddr != Default().MetricsAddr {
		t.Errorf("fields absent from the file should keep the base value, got %q", cfg.MetricsAddr)
	}
}

func TestFromFileMissingPath(t *testing.T) {
	if _, err := FromFile(Default(), "/no/such/file.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
