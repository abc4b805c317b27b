// Package config provides configuration loading and access for the grid subsystem.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all grid subsystem configuration parameters.
type Config struct {
	Tick      TickConfig      `yaml:"tick"`
	Fuel      FuelConfig      `yaml:"fuel"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// TickConfig holds simulation tick parameters.
type TickConfig struct {
	RateHz   int     `yaml:"rate_hz"`   // Fixed tick rate shared with the rest of the simulation
	BudgetMS float64 `yaml:"budget_ms"` // Per-tick recompute budget; overruns are logged, never fatal
}

// FuelConfig holds producer fuel defaults used when a placement
// event does not specify its own values.
type FuelConfig struct {
	DefaultStartupDelayTicks int64   `yaml:"default_startup_delay_ticks"`
	DefaultBurnPerTick       float64 `yaml:"default_burn_per_tick"`
}

// NotifierConfig holds topology notification parameters.
type NotifierConfig struct {
	MaxDepth int `yaml:"max_depth"` // Re-entrant emission depth before notifications are dropped
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindowTicks int64 `yaml:"stats_window_ticks"`
	PerfWindow       int   `yaml:"perf_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	TickInterval time.Duration // 1/RateHz
	TickBudget   time.Duration // BudgetMS as a duration
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	if c.Tick.RateHz <= 0 {
		c.Tick.RateHz = 20
	}
	if c.Notifier.MaxDepth <= 0 {
		c.Notifier.MaxDepth = 8
	}
	if c.Telemetry.PerfWindow <= 0 {
		c.Telemetry.PerfWindow = int(c.Tick.RateHz)
	}
	c.Derived.TickInterval = time.Second / time.Duration(c.Tick.RateHz)
	c.Derived.TickBudget = time.Duration(c.Tick.BudgetMS * float64(time.Millisecond))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
