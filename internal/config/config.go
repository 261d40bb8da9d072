// Package config loads the affinityd YAML configuration and turns it into
// scheduler options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "github.com/goccy/go-yaml"

	"github.com/Swind/go-affinity-scheduler/core"
)

// Config mirrors affinityd.yaml.
type Config struct {
	RegularThreads  ThreadRange   `yaml:"regular_threads"`
	ContextThreads  ThreadRange   `yaml:"context_threads"`
	PollInterval    Duration      `yaml:"poll_interval"`
	HistoryCapacity int           `yaml:"history_capacity"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Journal         JournalConfig `yaml:"journal"`

	// Windows are the headless windows affinityd run opens at startup.
	Windows []string `yaml:"windows"`
}

// ThreadRange bounds a worker pool.
type ThreadRange struct {
	Min ThreadCount `yaml:"min"`
	Max ThreadCount `yaml:"max"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Namespace    string   `yaml:"namespace"`
	Listen       string   `yaml:"listen"` // empty disables the HTTP endpoint
	PollInterval Duration `yaml:"poll_interval"`
}

type JournalConfig struct {
	Path       string `yaml:"path"` // empty disables the journal
	BufferSize int    `yaml:"buffer_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		RegularThreads:  ThreadRange{Min: 1, Max: ThreadCount(core.AutoThreads)},
		ContextThreads:  ThreadRange{Min: 1, Max: 1},
		PollInterval:    Duration(50 * time.Millisecond),
		HistoryCapacity: 100,
		Log:             LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Namespace:    "affinity",
			Listen:       ":9464",
			PollInterval: Duration(time.Second),
		},
		Journal: JournalConfig{BufferSize: 256},
		Windows: []string{"main"},
	}
}

// Load reads YAML and overrides defaults; an empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and applies sanity clamps.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// sanity clamps
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Default().PollInterval
	}
	if cfg.Metrics.PollInterval <= 0 {
		cfg.Metrics.PollInterval = Default().Metrics.PollInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = Default().HistoryCapacity
	}
	if cfg.Journal.BufferSize <= 0 {
		cfg.Journal.BufferSize = Default().Journal.BufferSize
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// SchedulerOptions resolves the configuration into core.Options. Handlers are
// left for the caller to fill in.
func (c Config) SchedulerOptions() core.Options {
	opts := core.DefaultOptions()
	opts.Regular = c.RegularThreads.sizing()
	opts.Context = c.ContextThreads.sizing()
	opts.PollInterval = time.Duration(c.PollInterval)
	opts.HistoryCapacity = c.HistoryCapacity
	return opts
}

func (r ThreadRange) sizing() core.PoolSizing {
	return core.PoolSizing{Min: int(r.Min), Max: int(r.Max)}
}

// =============================================================================
// Scalar types
// =============================================================================

// ThreadCount is a worker count that also accepts "auto" (or "hardware") for
// hardware concurrency.
type ThreadCount int

func (n *ThreadCount) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	switch strings.ToLower(s) {
	case "auto", "hardware":
		*n = ThreadCount(core.AutoThreads)
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("thread count %q: want an integer or auto", s)
	}
	if v < 0 && v != core.AutoThreads {
		return fmt.Errorf("thread count %d: must not be negative", v)
	}
	*n = ThreadCount(v)
	return nil
}

func (n ThreadCount) MarshalYAML() (any, error) {
	if int(n) == core.AutoThreads {
		return "auto", nil
	}
	return int(n), nil
}

// Duration is a time.Duration written as a Go duration string ("50ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
