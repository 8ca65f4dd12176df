// Package cache defines the port interface and configuration for result caching.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Strategy selects how agent-result lookups match cached entries.
type Strategy string

const (
	// StrategyExact matches on the full fingerprint of the invocation.
	StrategyExact Strategy = "exact"
	// StrategySemantic additionally matches near-identical invocations
	// above a similarity threshold. Requires a backend that supports it.
	StrategySemantic Strategy = "semantic"
)

// Config describes an agent-result cache. The orchestrator consumes it
// opportunistically and behaves identically, only slower, when disabled.
type Config struct {
	Enabled             bool          `yaml:"enabled"`
	Strategy            Strategy      `yaml:"strategy"`
	MaxEntries          int           `yaml:"max_entries"`
	DefaultTTL          time.Duration `yaml:"default_ttl"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"` // semantic strategy only
}

// Validate rejects malformed limits at construction time; nothing is clamped.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyExact, StrategySemantic:
	default:
		return fmt.Errorf("cache config: unknown strategy %q", c.Strategy)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache config: max_entries %d must not be negative", c.MaxEntries)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("cache config: default_ttl %s must not be negative", c.DefaultTTL)
	}
	if c.Strategy == StrategySemantic && (c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1) {
		return fmt.Errorf("cache config: similarity_threshold %v outside (0, 1]", c.SimilarityThreshold)
	}
	return nil
}
