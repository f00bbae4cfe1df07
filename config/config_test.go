package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `levelflow:
  name: "TestApp"
  version: "1.0"
data_lake:
  dir: "testdata"
basis:
  cache_ttl: 30s
providers:
  futures:
    base_url: "https://example.test/api/v1"
    min_call_interval: 1500ms
  cfd:
    url: "ws://localhost:9100/tick"
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Levelflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Levelflow.Name)
	}
	if cfg.Basis.CacheTTL != 30*time.Second {
		t.Errorf("unexpected cache ttl: %s", cfg.Basis.CacheTTL)
	}
	if cfg.Providers.Futures.MinCallInterval != 1500*time.Millisecond {
		t.Errorf("unexpected min call interval: %s", cfg.Providers.Futures.MinCallInterval)
	}
	// Defaults fill in whatever the file leaves out.
	if cfg.Levels.MaxLevelsPerSide != 5 {
		t.Errorf("unexpected max levels per side: %d", cfg.Levels.MaxLevelsPerSide)
	}
	if cfg.Levels.ValueAreaPercentage != 0.70 {
		t.Errorf("unexpected value area percentage: %f", cfg.Levels.ValueAreaPercentage)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yml")
	if err := os.WriteFile(path, []byte("levelflow:\n  version: \"1.0\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigEnvAPIKey(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	t.Setenv("FINNHUB_API_KEY", "secret-token")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Providers.Futures.APIKey != "secret-token" {
		t.Errorf("env api key not applied: %q", cfg.Providers.Futures.APIKey)
	}
}

func TestInstrumentTableGet(t *testing.T) {
	table := DefaultInstruments()

	inst, err := table.Get("ES")
	if err != nil {
		t.Fatalf("Get(ES): %v", err)
	}
	if inst.MinLevelDistance != 5.0 {
		t.Errorf("unexpected min level distance: %f", inst.MinLevelDistance)
	}
	if inst.VolumeProfileBins != 50 {
		t.Errorf("unexpected bins: %d", inst.VolumeProfileBins)
	}
	if got := inst.CFDCandidates(); got[0] != "US500" || len(got) != 4 {
		t.Errorf("unexpected cfd candidates: %v", got)
	}

	if _, err := table.Get("WTI"); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestLoadInstrumentsMissingFileUsesDefaults(t *testing.T) {
	table, err := LoadInstruments(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadInstruments: %v", err)
	}
	if _, err := table.Get("NQ"); err != nil {
		t.Errorf("defaults missing NQ: %v", err)
	}
}

func TestLoadInstrumentsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yml")
	content := `instruments:
  ES:
    name: "E-mini S&P 500"
    tick_size: 0.25
    min_level_distance: 7.5
    cfd_symbol: "US500"
    futures_symbols: ["CME:ES"]
    typical_basis_min: -10
    typical_basis_max: 10
    fallback_basis: 2.5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write instruments: %v", err)
	}

	table, err := LoadInstruments(path)
	if err != nil {
		t.Fatalf("LoadInstruments: %v", err)
	}
	inst, err := table.Get("ES")
	if err != nil {
		t.Fatalf("Get(ES): %v", err)
	}
	if inst.MinLevelDistance != 7.5 {
		t.Errorf("override not applied: %f", inst.MinLevelDistance)
	}
	if inst.VolumeProfileBins != 50 {
		t.Errorf("bins default not applied: %d", inst.VolumeProfileBins)
	}
	// Untouched defaults survive.
	if _, err := table.Get("GOLD"); err != nil {
		t.Errorf("defaults lost: %v", err)
	}
}

func TestWithinTypicalBasis(t *testing.T) {
	inst := Instrument{TypicalBasisMin: -10, TypicalBasisMax: 10}
	if !inst.WithinTypicalBasis(2.5) {
		t.Errorf("2.5 should be within (-10, 10)")
	}
	if inst.WithinTypicalBasis(12.0) {
		t.Errorf("12.0 should be outside (-10, 10)")
	}
	if !inst.WithinTypicalBasis(-10) {
		t.Errorf("range bounds are inclusive")
	}
}
