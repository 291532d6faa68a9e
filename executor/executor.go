// Package executor orchestrates a single tool invocation: circuit breaker
// gating, per-tool timeouts, memory guarding and classified retry with
// backoff around an externally supplied handler.
package executor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/backoff"
	"github.com/effective-security/toolgate/breaker"
	"github.com/effective-security/toolgate/classify"
	"github.com/effective-security/toolgate/memguard"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/timeouts"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "executor")

// MaxAttempts is the attempt ceiling: 1 initial call plus 5 retries.
// A tuned constant, not derived from the breaker or backoff settings.
const MaxAttempts = 6

// ErrCircuitOpen is returned when the tool's circuit breaker rejects the
// call. A rejection is not a failure: it does not increment the breaker's
// own failure count.
var ErrCircuitOpen = errors.New("circuit breaker open, call rejected")

// Handler performs the remote operation. It may fail with any error;
// errors produced at the remote API boundary should be *classify.APIError.
type Handler func(ctx context.Context, input string) (string, error)

// Executor runs tool invocations with the resilience pipeline.
type Executor struct {
	breakers *breaker.Registry
	timeouts *timeouts.Policy
	guard    *memguard.Guard
	backoff  *backoff.Policy
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithMemoryGuard overrides the memory guard.
func WithMemoryGuard(g *memguard.Guard) Option {
	return func(e *Executor) { e.guard = g }
}

// WithBackoff overrides the backoff policy.
func WithBackoff(p *backoff.Policy) Option {
	return func(e *Executor) { e.backoff = p }
}

// WithSleep overrides the backoff sleep, used in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// New creates an Executor around the shared breaker registry and timeout
// policy.
func New(breakers *breaker.Registry, tp *timeouts.Policy, options ...Option) *Executor {
	e := &Executor{
		breakers: breakers,
		timeouts: tp,
		guard:    memguard.New(),
		backoff:  backoff.New(),
		sleep:    sleepContext,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoke runs the handler with up to MaxAttempts attempts. On terminal
// failure it returns a single enriched error carrying the raw message, the
// attempt count and a remediation hint; raw stack traces are not surfaced.
func (e *Executor) Invoke(ctx context.Context, toolName, input string, handler Handler) (string, error) {
	var lastErr error
	var authRetried bool

	for attempt := uint(1); ; attempt++ {
		// checked before every attempt, so a breaker opened concurrently
		// by another invocation still stops this sequence
		if e.breakers.IsOpen(toolName) {
			metricskey.StatsToolCallsRejected.IncrCounter(1, toolName)
			if lastErr != nil {
				return "", enhance(lastErr, toolName, attempt-1)
			}
			return "", errors.WithMessagef(ErrCircuitOpen, "tool %s", toolName)
		}

		// memory pressure aborts the call entirely, before the first
		// attempt only; never re-checked on retries, never retried
		if attempt == 1 {
			if err := e.guard.Check(); err != nil {
				return "", err
			}
		}

		res, err := e.attempt(ctx, toolName, input, handler)
		if err == nil {
			e.breakers.RecordSuccess(toolName)
			return res, nil
		}
		if ctx.Err() != nil {
			// caller cancellation is not a tool failure
			return "", errors.WithStack(ctx.Err())
		}

		lastErr = err
		e.breakers.RecordFailure(toolName)

		var apiErr *classify.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			apiErr.AuthRetried = authRetried
		}
		cls := classify.Classify(err)
		if cls.Retryable && cls.Category == classify.AuthExpired {
			// a 401 is retried at most once per logical invocation
			authRetried = true
		}

		logger.ContextKV(ctx, xlog.WARNING,
			"tool", toolName,
			"status", "attempt_failed",
			"attempt", attempt,
			"category", cls.Category.String(),
			"retryable", cls.Retryable,
			"err", err.Error(),
		)

		if attempt >= MaxAttempts || !cls.Retryable || e.breakers.IsOpen(toolName) {
			return "", enhance(lastErr, toolName, attempt)
		}

		metricskey.StatsToolCallsRetried.IncrCounter(1, toolName)
		if err := e.sleep(ctx, e.backoff.Delay(attempt)); err != nil {
			return "", errors.WithStack(err)
		}
	}
}

// attempt races the handler against the tool's timeout ceiling.
func (e *Executor) attempt(ctx context.Context, toolName, input string, handler Handler) (string, error) {
	started := time.Now()
	defer metricskey.PerfToolAttempt.MeasureSince(started, toolName)

	timeout := e.timeouts.TimeoutFor(toolName)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := handler(actx, input)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", errors.WithStack(classify.NewNetworkError("ETIMEDOUT",
				"tool "+toolName+" timed out after "+timeout.String()))
		}
		return "", errors.WithStack(actx.Err())
	}
}

// enhance combines the raw error text with the attempt count and a
// category-specific remediation hint.
func enhance(err error, toolName string, attempts uint) error {
	hint := classify.Hint(err)
	if hint != "" {
		return errors.WithMessagef(err, "tool %s failed after %d attempt(s) (%s)", toolName, attempts, hint)
	}
	return errors.WithMessagef(err, "tool %s failed after %d attempt(s)", toolName, attempts)
}
