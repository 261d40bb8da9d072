package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if int(cfg.RegularThreads.Max) != core.AutoThreads {
		t.Errorf("RegularThreads.Max = %d, want auto", cfg.RegularThreads.Max)
	}
	if time.Duration(cfg.PollInterval) != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want 50ms", time.Duration(cfg.PollInterval))
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "affinityd.yaml")
	data := `
regular_threads:
  min: 2
  max: auto
context_threads:
  min: hardware
  max: 4
poll_interval: 10ms
log:
  level: debug
journal:
  path: /tmp/journal.db
windows: [left, right]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	// Act
	cfg, err := Load(path)

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RegularThreads.Min != 2 || int(cfg.RegularThreads.Max) != core.AutoThreads {
		t.Errorf("RegularThreads = %+v, want {2 auto}", cfg.RegularThreads)
	}
	if int(cfg.ContextThreads.Min) != core.AutoThreads || cfg.ContextThreads.Max != 4 {
		t.Errorf("ContextThreads = %+v, want {auto 4}", cfg.ContextThreads)
	}
	if time.Duration(cfg.PollInterval) != 10*time.Millisecond {
		t.Errorf("PollInterval = %v, want 10ms", time.Duration(cfg.PollInterval))
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want level debug with default format", cfg.Log)
	}
	if cfg.Journal.Path != "/tmp/journal.db" || cfg.Journal.BufferSize != 256 {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if len(cfg.Windows) != 2 || cfg.Windows[1] != "right" {
		t.Errorf("Windows = %v, want [left right]", cfg.Windows)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of a missing file returned nil error")
	}
}

func TestParse_InvalidThreadCount(t *testing.T) {
	_, err := Parse([]byte("regular_threads:\n  max: lots\n"))
	if err == nil || !strings.Contains(err.Error(), "thread count") {
		t.Fatalf("Parse() error = %v, want a thread count error", err)
	}
}

func TestParse_ClampsNonPositive(t *testing.T) {
	cfg, err := Parse([]byte("history_capacity: -3\njournal:\n  buffer_size: 0\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.HistoryCapacity != 100 || cfg.Journal.BufferSize != 256 {
		t.Errorf("clamps not applied: history=%d buffer=%d", cfg.HistoryCapacity, cfg.Journal.BufferSize)
	}
}

func TestSchedulerOptions(t *testing.T) {
	cfg := Default()
	cfg.RegularThreads = ThreadRange{Min: 2, Max: 8}
	cfg.PollInterval = Duration(20 * time.Millisecond)

	opts := cfg.SchedulerOptions()

	if opts.Regular != (core.PoolSizing{Min: 2, Max: 8}) {
		t.Errorf("Regular = %+v, want {2 8}", opts.Regular)
	}
	if opts.Context != (core.PoolSizing{Min: 1, Max: 1}) {
		t.Errorf("Context = %+v, want {1 1}", opts.Context)
	}
	if opts.PollInterval != 20*time.Millisecond {
		t.Errorf("PollInterval = %v, want 20ms", opts.PollInterval)
	}
	if opts.HardwareThreads < 1 {
		t.Errorf("HardwareThreads = %d, want >= 1", opts.HardwareThreads)
	}
}

func TestMarshal_RoundTripsAuto(t *testing.T) {
	out, err := Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), "max: auto") {
		t.Errorf("marshalled config lacks 'max: auto':\n%s", out)
	}
	if !strings.Contains(string(out), "poll_interval: 50ms") {
		t.Errorf("marshalled config lacks 'poll_interval: 50ms':\n%s", out)
	}
}
