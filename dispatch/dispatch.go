// Package dispatch is the composition root for tool execution: it owns the
// tool registry and routes every call through session validation, the retry
// executor, response limiting and call statistics.
package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/authcache"
	"github.com/effective-security/toolgate/callstats"
	"github.com/effective-security/toolgate/executor"
	"github.com/effective-security/toolgate/limits"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	mcp "github.com/metoro-io/mcp-golang"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "dispatch")

// Dispatcher owns the tool registry and the per-call pipeline. All state is
// injected; two Dispatchers in one process are fully independent.
type Dispatcher struct {
	id        string
	exec      *executor.Executor
	auth      *authcache.Cache
	limiter   limits.Limiter
	stats     *callstats.Collector
	callbacks []tools.Callback

	refreshInterval time.Duration
	flushInterval   time.Duration

	mu    sync.RWMutex
	tools map[string]tools.ITool

	stopRefresher func()
	stopFlusher   func()
	closeOnce     sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAuthCache enables session validation before every call. Without it
// calls go straight to the executor.
func WithAuthCache(c *authcache.Cache) Option {
	return func(d *Dispatcher) { d.auth = c }
}

// WithLimiter overrides the response limiter.
func WithLimiter(l limits.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithCollector overrides the call statistics collector.
func WithCollector(c *callstats.Collector) Option {
	return func(d *Dispatcher) { d.stats = c }
}

// WithCallback adds a tool lifecycle callback.
func WithCallback(cb tools.Callback) Option {
	return func(d *Dispatcher) { d.callbacks = append(d.callbacks, cb) }
}

// WithRefreshInterval overrides the background session warming period.
func WithRefreshInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.refreshInterval = interval }
}

// WithFlushInterval overrides the call statistics logging period.
func WithFlushInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.flushInterval = interval }
}

// New creates a Dispatcher around the executor.
func New(exec *executor.Executor, options ...Option) *Dispatcher {
	d := &Dispatcher{
		id:              uuid.NewString(),
		exec:            exec,
		limiter:         limits.NewLimiter(),
		stats:           callstats.NewCollector(),
		refreshInterval: authcache.DefaultRefreshInterval,
		flushInterval:   callstats.DefaultFlushInterval,
		tools:           make(map[string]tools.ITool),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// ID returns the dispatcher instance ID, used for log correlation.
func (d *Dispatcher) ID() string {
	return d.id
}

// Register adds tools to the registry. Names are case-insensitive and must
// be unique.
func (d *Dispatcher) Register(list ...tools.ITool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range list {
		key := strings.ToLower(t.Name())
		if _, ok := d.tools[key]; ok {
			return errors.Newf("tool %s already registered", t.Name())
		}
		d.tools[key] = t
	}
	return nil
}

// Tool returns the registered tool by its case-insensitive name.
func (d *Dispatcher) Tool(name string) (tools.ITool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[strings.ToLower(name)]
	return t, ok
}

// Tools returns the registered tools sorted by name.
func (d *Dispatcher) Tools() []tools.ITool {
	d.mu.RLock()
	list := make([]tools.ITool, 0, len(d.tools))
	for _, t := range d.tools {
		list = append(list, t)
	}
	d.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Dispatch runs one tool call through the full pipeline and returns the
// limited response with its _meta annotation.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName, input string) (string, error) {
	tool, ok := d.Tool(toolName)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		return "", errors.Newf("tool %s not found", toolName)
	}

	if toolcall.GetCallContext(ctx) == nil {
		ctx = toolcall.WithCallContext(ctx, toolcall.NewCallContext("", tool.Name(), nil))
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, tool.Name())

	logger.ContextKV(ctx, xlog.DEBUG,
		"dispatcher", d.id,
		"tool", tool.Name(),
		"call_id", toolcall.GetCallID(ctx),
	)
	for _, cb := range d.callbacks {
		cb.OnToolStart(ctx, tool, input)
	}

	if d.auth != nil {
		if _, err := d.auth.Validate(ctx); err != nil {
			return "", d.failed(ctx, tool, input, started, err)
		}
	}

	out, err := d.exec.Invoke(ctx, tool.Name(), input, tool.Call)
	if err != nil {
		return "", d.failed(ctx, tool, input, started, err)
	}

	out, meta := limits.Apply(d.limiter, tool.Name(), out)
	out = limits.AttachMeta(out, meta)

	d.stats.Record(tool.Name(), time.Since(started), false)
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, tool.Name())
	for _, cb := range d.callbacks {
		cb.OnToolEnd(ctx, tool, input, out)
	}
	return out, nil
}

func (d *Dispatcher) failed(ctx context.Context, tool tools.ITool, input string, started time.Time, err error) error {
	d.stats.Record(tool.Name(), time.Since(started), true)
	metricskey.StatsToolCallsFailed.IncrCounter(1, tool.Name())

	logger.ContextKV(ctx, xlog.ERROR,
		"dispatcher", d.id,
		"tool", tool.Name(),
		"call_id", toolcall.GetCallID(ctx),
		"err", err.Error(),
	)
	for _, cb := range d.callbacks {
		cb.OnToolError(ctx, tool, input, err)
	}
	return err
}

// Start launches the background session warmer and the statistics flusher.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.auth != nil && d.stopRefresher == nil {
		d.stopRefresher = d.auth.StartRefresher(ctx, d.refreshInterval)
	}
	if d.stopFlusher == nil {
		d.stopFlusher = d.stats.StartFlusher(ctx, d.flushInterval)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"dispatcher", d.id,
		"status", "started",
		"tools", len(d.Tools()),
	)
}

// Close performs the ordered shutdown: stop the background warmer, flush the
// final statistics snapshot, then log out the session. Idempotent.
func (d *Dispatcher) Close(ctx context.Context) {
	d.closeOnce.Do(func() {
		if d.stopRefresher != nil {
			d.stopRefresher()
		}
		if d.stopFlusher != nil {
			d.stopFlusher()
		}
		d.stats.Flush(ctx)
		if d.auth != nil {
			d.auth.Logout(ctx)
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"dispatcher", d.id,
			"status", "closed",
		)
	})
}

// WaitForSignal blocks until SIGINT or SIGTERM, or until the context is
// done, then runs the ordered shutdown.
func (d *Dispatcher) WaitForSignal(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case <-ch:
	case <-ctx.Done():
	}
	d.Close(ctx)
}

// RegisterMCP registers the tool on an MCP server with calls routed through
// the dispatcher pipeline, preserving the tool's typed input schema.
func RegisterMCP[I any, O any](d *Dispatcher, registrator tools.McpServerRegistrator, tool tools.Tool[I, O]) error {
	handler := func(ctx context.Context, req *I) (*mcp.ToolResponse, error) {
		bs, err := json.Marshal(req)
		if err != nil {
			return nil, errors.WithMessagef(err, "tool %s: failed to encode request", tool.Name())
		}
		out, err := d.Dispatch(ctx, tool.Name(), string(bs))
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResponse(mcp.NewTextContent(out)), nil
	}
	return registrator.RegisterTool(tool.Name(), tool.Description(), handler)
}
