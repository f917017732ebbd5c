package collector

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimeoutTier bounds invocations for structures up to MaxSizeMB.
type TimeoutTier struct {
	MaxSizeMB int           `yaml:"max_size_mb"`
	Timeout   time.Duration `yaml:"timeout"`
}

// TimeoutTiers is an ascending list of size tiers. Sizes above the last
// tier run without a timeout.
type TimeoutTiers []TimeoutTier

// DefaultTimeouts: 10s up to 64 MB, 60s up to 256 MB, unbounded above.
var DefaultTimeouts = TimeoutTiers{
	{MaxSizeMB: 64, Timeout: 10 * time.Second},
	{MaxSizeMB: 256, Timeout: 60 * time.Second},
}

// For returns the timeout for a structure of sizeMB, 0 meaning none.
func (tt TimeoutTiers) For(sizeMB int) time.Duration {
	for _, t := range tt {
		if sizeMB <= t.MaxSizeMB {
			return t.Timeout
		}
	}
	return 0
}

// Policy configures the retry loop for one tuple.
type Policy struct {
	TargetSamples int           `yaml:"target_samples"`
	MaxRetries    int           `yaml:"max_retries"`
	Timeouts      TimeoutTiers  `yaml:"timeouts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultPolicy returns the policy used by sweeps unless overridden.
func DefaultPolicy() Policy {
	return Policy{
		TargetSamples: 10,
		MaxRetries:    20,
		Timeouts:      DefaultTimeouts,
	}
}

// Validate checks that the policy can terminate.
func (p Policy) Validate() error {
	if p.TargetSamples < 1 {
		return fmt.Errorf("target samples must be at least 1, got %d", p.TargetSamples)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", p.MaxRetries)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be non-negative, got %s", p.RetryDelay)
	}
	last := -1
	for _, t := range p.Timeouts {
		if t.MaxSizeMB <= last {
			return fmt.Errorf("timeout tiers must have ascending sizes, got %d after %d", t.MaxSizeMB, last)
		}
		if t.Timeout < 0 {
			return fmt.Errorf("timeout for sizes up to %d MB is negative", t.MaxSizeMB)
		}
		last = t.MaxSizeMB
	}
	return nil
}

var samplePattern = regexp.MustCompile(`(?m)^\s*(\d+)\s*ns`)

// ExtractSamples returns every "<integer> ns" line of out, in order.
func ExtractSamples(out string) []float64 {
	matches := samplePattern.FindAllStringSubmatch(out, -1)
	samples := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		samples = append(samples, v)
	}
	return samples
}
