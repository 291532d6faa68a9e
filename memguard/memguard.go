// Package memguard samples process heap usage before a tool call starts
// and aborts calls when memory pressure is critical.
package memguard

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "memguard")

const (
	// WarnThreshold logs a warning when exceeded.
	WarnThreshold = 200 << 20 // 200MB
	// GCThreshold requests a garbage-collection pass when exceeded.
	GCThreshold = 500 << 20 // 500MB
	// AbortThreshold fails the call when exceeded; never retried.
	AbortThreshold = 800 << 20 // 800MB
)

// ErrCriticalMemory is returned when heap usage exceeds AbortThreshold.
var ErrCriticalMemory = errors.New("critical memory usage, operation aborted")

// Guard checks process heap usage against the thresholds.
type Guard struct {
	sample func() (uint64, error)
	gc     func()
}

// Option configures a Guard.
type Option func(*Guard)

// WithSampler overrides the heap sampler, used in tests.
func WithSampler(sample func() (uint64, error)) Option {
	return func(g *Guard) { g.sample = sample }
}

// WithGC overrides the garbage-collection trigger, used in tests.
func WithGC(gc func()) Option {
	return func(g *Guard) { g.gc = gc }
}

// New creates a Guard sampling the Go heap.
func New(options ...Option) *Guard {
	g := &Guard{
		sample: heapAlloc,
		gc:     runtime.GC,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func heapAlloc() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc, nil
}

// Check samples heap usage and returns ErrCriticalMemory above
// AbortThreshold. A failed sample is swallowed with a warning and never
// blocks execution.
func (g *Guard) Check() error {
	used, err := g.sample()
	if err != nil {
		logger.KV(xlog.WARNING,
			"status", "memory_sample_failed",
			"err", err.Error(),
		)
		return nil
	}

	if used > AbortThreshold {
		metricskey.StatsMemoryAborts.IncrCounter(1)
		logger.KV(xlog.ERROR,
			"status", "memory_critical",
			"heap_bytes", used,
		)
		return errors.WithStack(ErrCriticalMemory)
	}

	if used > GCThreshold {
		metricskey.StatsMemoryGCForced.IncrCounter(1)
		logger.KV(xlog.WARNING,
			"status", "memory_gc_requested",
			"heap_bytes", used,
		)
		g.gc()
		return nil
	}

	if used > WarnThreshold {
		metricskey.StatsMemoryWarnings.IncrCounter(1)
		logger.KV(xlog.WARNING,
			"status", "memory_high",
			"heap_bytes", used,
		)
	}
	return nil
}
