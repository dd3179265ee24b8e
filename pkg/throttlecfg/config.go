// Package throttlecfg loads and validates the YAML rule/strategy file that
// configures a MultiThrottler and its companion strategies. It follows the
// teacher's pkg/config convention of validating before anything is
// constructed: a malformed file is a refused load, never a silently
// clamped value (spec.md §7).
package throttlecfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ratethrottle/pkg/throttle"
)

// RuleConfig is one YAML-configured token bucket rule.
type RuleConfig struct {
	ID               string  `yaml:"id"`
	Capacity         float64 `yaml:"capacity"`
	RefillRatePerSec float64 `yaml:"refill_rate_per_sec"`
	IntervalType     string  `yaml:"interval_type"`
	IntervalNum      int     `yaml:"interval_num"`
	Description      string  `yaml:"description"`
}

// FixedDelayConfig configures the strategy.FixedDelay strategy.
type FixedDelayConfig struct {
	DelayMs int `yaml:"delay_ms"`
}

// SimpleBucketConfig configures the strategy.SimpleBucket strategy.
type SimpleBucketConfig struct {
	Capacity         float64 `yaml:"capacity"`
	RefillRatePerSec float64 `yaml:"refill_rate_per_sec"`
}

// AdaptiveConfig configures the strategy.Adaptive strategy.
type AdaptiveConfig struct {
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// WindowConfig is one service's entry in the window_bound table.
type WindowConfig struct {
	Limit    int `yaml:"limit"`
	WindowMs int `yaml:"window_ms"`
}

// StrategyConfig collects every optional single-bucket strategy's settings.
// A zero-value field means that strategy section was absent from the file.
type StrategyConfig struct {
	FixedDelay   *FixedDelayConfig       `yaml:"fixed_delay"`
	SimpleBucket *SimpleBucketConfig     `yaml:"simple_bucket"`
	Adaptive     *AdaptiveConfig         `yaml:"adaptive"`
	WindowBound  map[string]WindowConfig `yaml:"window_bound"`
}

// Config is the parsed, validated contents of a throttle configuration file.
type Config struct {
	MaxCapacity int            `yaml:"max_capacity"`
	DelayMs     int            `yaml:"delay_ms"`
	Rules       []RuleConfig   `yaml:"rules"`
	Strategies  StrategyConfig `yaml:"strategies"`
}

// LoadConfig reads and validates the YAML file at path. Validation happens
// before the caller ever sees a Config: positive capacities/rates,
// non-negative delay, and unique rule ids, matching the teacher's
// validate-before-accept constructors (spec.md §7, SPEC_FULL.md §A3).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("throttlecfg: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("throttlecfg: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("throttlecfg: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MaxCapacity <= 0 {
		return fmt.Errorf("max_capacity must be positive, got %d", c.MaxCapacity)
	}
	if c.DelayMs < 0 {
		return fmt.Errorf("delay_ms must be non-negative, got %d", c.DelayMs)
	}
	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}

	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if !(r.Capacity > 0) {
			return fmt.Errorf("rule %q: capacity must be positive, got %v", r.ID, r.Capacity)
		}
		if !(r.RefillRatePerSec > 0) {
			return fmt.Errorf("rule %q: refill_rate_per_sec must be positive, got %v", r.ID, r.RefillRatePerSec)
		}
	}

	for service, w := range c.Strategies.WindowBound {
		if w.Limit <= 0 || w.WindowMs <= 0 {
			return fmt.Errorf("window_bound %q: limit and window_ms must be positive", service)
		}
	}
	return nil
}

// ThrottleRules converts the YAML rule configs into throttle.Rule values,
// starting every bucket full (spec.md's default, absent an explicit initial
// balance in the file format). refill_rate_per_sec is converted to
// tokens-per-millisecond, the unit throttle.Rule.RefillRate expects.
func (c *Config) ThrottleRules() []throttle.Rule {
	rules := make([]throttle.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, throttle.Rule{
			ID:           r.ID,
			Capacity:     r.Capacity,
			RefillRate:   r.RefillRatePerSec / 1000.0,
			Tokens:       r.Capacity,
			IntervalType: r.IntervalType,
			IntervalNum:  r.IntervalNum,
			Description:  r.Description,
		})
	}
	return rules
}

// ThrottleConfig converts the file's top-level fields into a throttle.Config.
func (c *Config) ThrottleConfig() throttle.Config {
	return throttle.Config{MaxCapacity: c.MaxCapacity, DelayMs: c.DelayMs}
}
