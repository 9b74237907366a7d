// Package budget caps the LLM spend of a single research run.
package budget

import "fmt"

// Config defines the limits of one run. Nil fields are unlimited.
type Config struct {
	MaxCost   *float64 `json:"max_cost_usd,omitempty"`
	MaxTokens *int64   `json:"max_tokens,omitempty"`
}

// FromLimits builds a Config where zero means unlimited.
func FromLimits(maxCost float64, maxTokens int64) Config {
	var c Config
	if maxCost > 0 {
		c.MaxCost = &maxCost
	}
	if maxTokens > 0 {
		c.MaxTokens = &maxTokens
	}
	return c
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.MaxCost != nil && *c.MaxCost < 0 {
		return fmt.Errorf("max_cost_usd cannot be negative")
	}
	if c.MaxTokens != nil && *c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	return nil
}

// Clone produces a deep copy of the config.
func (c Config) Clone() Config {
	var clone Config
	if c.MaxCost != nil {
		v := *c.MaxCost
		clone.MaxCost = &v
	}
	if c.MaxTokens != nil {
		v := *c.MaxTokens
		clone.MaxTokens = &v
	}
	return clone
}

// Merge overlays non-nil values from override onto base. A request may
// tighten the configured limits but never loosen them.
func Merge(base Config, override Config) Config {
	result := base.Clone()
	if override.MaxCost != nil && (result.MaxCost == nil || *override.MaxCost < *result.MaxCost) {
		v := *override.MaxCost
		result.MaxCost = &v
	}
	if override.MaxTokens != nil && (result.MaxTokens == nil || *override.MaxTokens < *result.MaxTokens) {
		v := *override.MaxTokens
		result.MaxTokens = &v
	}
	return result
}

// IsZero reports whether the config defines no limits.
func (c Config) IsZero() bool {
	return (c.MaxCost == nil || *c.MaxCost == 0) && (c.MaxTokens == nil || *c.MaxTokens == 0)
}
