// Package runner provides the background Runner that sweeps running
// jobs and advances each one step at a time.
package runner

import (
	"time"

	"github.com/draftline/autorun/pkg/schedule"
)

// Option configures a Runner.
type Option interface {
	ApplyRunner(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyRunner(c *Config) { f(c) }

// Config holds runner configuration.
type Config struct {
	PollInterval time.Duration
	SweepLimit   int // max jobs advanced per sweep
	RunnerID     string
	Schedule     schedule.Schedule // optional gate; nil sweeps every poll
	StorageRetry *RetryConfig
}

// PollInterval sets how often the runner checks for runnable jobs.
func PollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// SweepLimit caps how many jobs a single sweep advances.
func SweepLimit(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.SweepLimit = n
		}
	})
}

// WithSchedule gates sweeps on a schedule instead of every poll tick.
func WithSchedule(s schedule.Schedule) Option {
	return optionFunc(func(c *Config) { c.Schedule = s })
}

// WithStorageRetry overrides the retry policy for storage reads.
func WithStorageRetry(cfg RetryConfig) Option {
	return optionFunc(func(c *Config) { c.StorageRetry = &cfg })
}
