// Package callstats aggregates per-tool call counts, latency and errors for
// the process lifetime. Snapshots are read-only and have no effect on
// control flow.
package callstats

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "callstats")

// DefaultFlushInterval is the period of the snapshot log.
const DefaultFlushInterval = 60 * time.Second

type entry struct {
	calls       atomic.Uint64
	totalTimeMs atomic.Uint64
	errors      atomic.Uint64
}

// Collector accumulates per-tool call metrics. Entries are lazily created
// and never reset except by process restart.
type Collector struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		entries: make(map[string]*entry),
	}
}

func (c *Collector) entry(toolName string) *entry {
	c.mu.RLock()
	e := c.entries[toolName]
	c.mu.RUnlock()
	if e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.entries[toolName]; e == nil {
		e = &entry{}
		c.entries[toolName] = e
	}
	return e
}

// Record registers one completed call, success or failure.
func (c *Collector) Record(toolName string, elapsed time.Duration, isError bool) {
	e := c.entry(toolName)
	e.calls.Add(1)
	e.totalTimeMs.Add(uint64(elapsed.Milliseconds()))
	if isError {
		e.errors.Add(1)
	}
}

// ToolStats is a read-only snapshot of one tool's accumulated metrics.
type ToolStats struct {
	Tool         string
	Calls        uint64
	Errors       uint64
	AvgTimeMs    float64
	ErrorRatePct string
}

// Snapshot returns the accumulated stats sorted by tool name.
func (c *Collector) Snapshot() []ToolStats {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	stats := make([]ToolStats, 0, len(names))
	for _, name := range names {
		e := c.entry(name)
		calls := e.calls.Load()
		totalMs := e.totalTimeMs.Load()
		errs := e.errors.Load()

		var avg, rate float64
		if calls > 0 {
			avg = float64(totalMs) / float64(calls)
			rate = float64(errs) / float64(calls) * 100
		}
		stats = append(stats, ToolStats{
			Tool:         name,
			Calls:        calls,
			Errors:       errs,
			AvgTimeMs:    avg,
			ErrorRatePct: strconv.FormatFloat(rate, 'f', 2, 64),
		})
	}
	return stats
}

// Flush logs the current snapshot.
func (c *Collector) Flush(ctx context.Context) {
	for _, s := range c.Snapshot() {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "tool_call_stats",
			"tool", s.Tool,
			"calls", s.Calls,
			"errors", s.Errors,
			"avg_time_ms", s.AvgTimeMs,
			"error_rate_pct", s.ErrorRatePct,
		)
	}
}

// StartFlusher logs a snapshot on the interval. The returned stop function
// is idempotent.
func (c *Collector) StartFlusher(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				c.Flush(ctx)
			}
		}
	}()

	return func() {
		once.Do(func() { close(stopCh) })
	}
}
