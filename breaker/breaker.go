// Package breaker provides a per-tool circuit breaker. Repeated failures
// within a trailing window open the breaker; an open breaker rejects calls
// until a cool-down elapses or a success heals it.
package breaker

import (
	"strings"
	"sync"
	"time"

	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "breaker")

const (
	// FailureThreshold is the number of failures required to open a breaker.
	FailureThreshold = 5
	// FailureWindow is the trailing window within which failures count
	// towards opening.
	FailureWindow = 5 * time.Minute
	// ResetWindow is the cool-down after which an open breaker auto-heals.
	// Independent of FailureWindow and of the backoff policy.
	ResetWindow = 10 * time.Minute
)

type state struct {
	mu            sync.Mutex
	failureCount  uint
	lastFailureAt time.Time
	open          bool
}

// Registry tracks one breaker state per tool name. States are lazily
// created and persist for the process lifetime.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*state
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		states: make(map[string]*state),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// entry returns the state for the tool, creating it on first use.
// Locking is per entry so unrelated tools never serialize on each other.
func (r *Registry) entry(toolName string) *state {
	key := strings.ToLower(toolName)

	r.mu.RLock()
	s := r.states[key]
	r.mu.RUnlock()
	if s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.states[key]; s == nil {
		s = &state{}
		r.states[key] = s
	}
	return s
}

// RecordFailure registers a failed call. The breaker opens once the
// failure count reaches the threshold and the previous failure happened
// within the trailing window.
func (r *Registry) RecordFailure(toolName string) {
	s := r.entry(toolName)
	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lastFailureAt
	s.failureCount++
	s.lastFailureAt = now

	if !s.open && s.failureCount >= FailureThreshold && now.Sub(prev) < FailureWindow {
		s.open = true
		metricskey.StatsBreakerOpened.IncrCounter(1, toolName)
		logger.KV(xlog.WARNING,
			"tool", toolName,
			"status", "breaker_opened",
			"failure_count", s.failureCount,
		)
	}
}

// RecordSuccess fully heals the breaker: a single success closes it and
// resets the failure count. There is no half-open probing state.
func (r *Registry) RecordSuccess(toolName string) {
	s := r.entry(toolName)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount = 0
	s.open = false
}

// IsOpen reports whether calls to the tool should be rejected. An open
// breaker with no failures for longer than ResetWindow auto-heals.
func (r *Registry) IsOpen(toolName string) bool {
	s := r.entry(toolName)
	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open && now.Sub(s.lastFailureAt) > ResetWindow {
		s.open = false
		s.failureCount = 0
		metricskey.StatsBreakerAutoReset.IncrCounter(1, toolName)
		logger.KV(xlog.DEBUG,
			"tool", toolName,
			"status", "breaker_auto_reset",
		)
	}
	return s.open
}

// FailureCount returns the current failure count for the tool.
func (r *Registry) FailureCount(toolName string) uint {
	s := r.entry(toolName)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureCount
}
