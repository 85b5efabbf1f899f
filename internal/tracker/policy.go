package tracker

import (
	"errors"
	"time"
)

// Poll policy defaults.
const (
	DefaultPollInterval     = 10 * time.Second
	DefaultBackoffCeiling   = time.Minute
	DefaultMaxStoreFailures = 5
)

// PollPolicy controls how often the result store is polled.
type PollPolicy struct {
	// Interval is the delay after a tick that made progress.
	Interval time.Duration `mapstructure:"poll_interval"`
	// BackoffCeiling caps the doubling applied after idle ticks.
	BackoffCeiling time.Duration `mapstructure:"backoff_ceiling"`
	// MaxStoreFailures is the number of consecutive store errors after which
	// a batch is marked failed.
	MaxStoreFailures int `mapstructure:"max_store_failures"`
}

// DefaultPollPolicy returns the production polling schedule.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:         DefaultPollInterval,
		BackoffCeiling:   DefaultBackoffCeiling,
		MaxStoreFailures: DefaultMaxStoreFailures,
	}
}

// Validate rejects unusable policies.
func (p PollPolicy) Validate() error {
	if p.Interval <= 0 {
		return errors.New("poll interval must be > 0")
	}
	if p.MaxStoreFailures < 1 {
		return errors.New("max store failures must be >= 1")
	}
	return nil
}

// Next returns the delay before the following tick. Progress resets to the
// base interval; an idle tick doubles the delay up to the ceiling.
func (p PollPolicy) Next(current time.Duration, progressed bool) time.Duration {
	if progressed || current <= 0 {
		return p.Interval
	}
	ceiling := p.BackoffCeiling
	if ceiling < p.Interval {
		ceiling = p.Interval
	}
	next := current * 2
	if next > ceiling {
		next = ceiling
	}
	return next
}
