// Package backoff computes retry delays with exponential growth and
// symmetric jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	// DefaultBaseDelay is the nominal delay before the second attempt.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps the computed delay.
	DefaultMaxDelay = 30 * time.Second
)

// Policy computes the delay before a retry attempt.
type Policy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	rand      func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand overrides the jitter source, used in tests.
func WithRand(f func() float64) Option {
	return func(p *Policy) { p.rand = f }
}

// WithBaseDelay overrides the base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.baseDelay = d }
}

// WithMaxDelay overrides the delay cap.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// New creates a Policy with the default 1s base, 30s cap and uniform jitter.
func New(options ...Option) *Policy {
	p := &Policy{
		baseDelay: DefaultBaseDelay,
		maxDelay:  DefaultMaxDelay,
		rand:      rand.Float64,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Delay returns the delay before retrying. Attempt numbers start at 1 for
// the first retry: base = baseDelay * 2^(attempt-1), with a uniformly random
// jitter of base * 0.25 * (rand - 0.5), capped at maxDelay.
// Nominal delays are ~1s, 2s, 4s, 8s, 16s, 30s (capped).
func (p *Policy) Delay(attempt uint) time.Duration {
	if attempt == 0 {
		attempt = 1
	}
	base := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	jitter := base * 0.25 * (p.rand() - 0.5)
	delay := base + jitter
	if max := float64(p.maxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}
