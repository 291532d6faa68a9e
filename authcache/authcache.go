// Package authcache caches the validated remote session and refreshes it
// through the external OAuth collaborators. The cache-hit path is the
// dominant one and performs no remote calls.
package authcache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "authcache")

const (
	// DefaultExpiry is assumed when the collaborator does not supply one.
	DefaultExpiry = 3600 * time.Second
	// DefaultRefreshInterval is the background cache-warming period.
	DefaultRefreshInterval = 5 * time.Minute
)

// ErrNotAuthenticated is returned when the token refresh fails and the user
// must log in again.
var ErrNotAuthenticated = errors.New("not authenticated: re-authenticate via the configured login flow")

// ConnectionValidator tests whether the remote session is currently usable.
type ConnectionValidator interface {
	ValidateConnection(ctx context.Context) error
}

// TokenSet is the token material loaded from the refresher.
type TokenSet struct {
	AccessToken string `json:"access_token"`
	// ExpiresIn is the token lifetime in seconds, 0 when unknown.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

// TokenRefresher is the external OAuth collaborator.
type TokenRefresher interface {
	IsAuthenticated(ctx context.Context) bool
	RefreshAccessToken(ctx context.Context) error
	LoadTokens(ctx context.Context) (*TokenSet, error)
	Logout(ctx context.Context) error
}

// Cache holds the single validated session.
type Cache struct {
	validator ConnectionValidator
	refresher TokenRefresher
	persist   store.SessionStore
	now       func() time.Time

	mu      sync.RWMutex
	session *store.SessionInfo
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSessionStore persists the session across restarts; best-effort,
// failures never block validation.
func WithSessionStore(st store.SessionStore) Option {
	return func(c *Cache) { c.persist = st }
}

// New creates a Cache around the external collaborators.
func New(validator ConnectionValidator, refresher TokenRefresher, options ...Option) *Cache {
	c := &Cache{
		validator: validator,
		refresher: refresher,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Validate returns the cached session while it is unexpired, otherwise
// validates the connection, refreshing credentials when needed, and caches
// the fresh session. Exactly one cache mutation per successful validation.
func (c *Cache) Validate(ctx context.Context) (*store.SessionInfo, error) {
	started := time.Now()
	defer metricskey.PerfAuthValidate.MeasureSince(started)

	now := c.now()

	c.mu.RLock()
	cached := c.session
	c.mu.RUnlock()
	if cached.Valid(now) {
		metricskey.StatsAuthCacheHits.IncrCounter(1)
		copy := *cached
		return &copy, nil
	}

	metricskey.StatsAuthCacheMisses.IncrCounter(1)

	// warm start from the persisted session, best-effort
	if c.persist != nil {
		persisted, err := c.persist.GetSession(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "session_store_read_failed",
				"err", err.Error(),
			)
		} else if persisted.Valid(now) {
			c.mu.Lock()
			c.session = persisted
			c.mu.Unlock()
			copy := *persisted
			return &copy, nil
		}
	}

	if err := c.validator.ValidateConnection(ctx); err != nil {
		return nil, errors.WithMessage(err, "connection validation failed")
	}

	if !c.refresher.IsAuthenticated(ctx) {
		if err := c.refresher.RefreshAccessToken(ctx); err != nil {
			metricskey.StatsAuthRefreshFailed.IncrCounter(1)
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "token_refresh_failed",
				"err", err.Error(),
			)
			return nil, errors.WithStack(ErrNotAuthenticated)
		}
	}

	tokens, err := c.refresher.LoadTokens(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load tokens")
	}

	expiry := DefaultExpiry
	if tokens.ExpiresIn > 0 {
		expiry = time.Duration(tokens.ExpiresIn) * time.Second
	}
	session := &store.SessionInfo{
		Token:     tokens.AccessToken,
		ExpiresAt: now.Add(expiry),
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if c.persist != nil {
		if err := c.persist.PutSession(ctx, session); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "session_store_write_failed",
				"err", err.Error(),
			)
		}
	}

	copy := *session
	return &copy, nil
}

// Logout drops the cached and persisted session and logs out the refresher.
// Used during ordered shutdown; all steps are best-effort.
func (c *Cache) Logout(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if c.persist != nil {
		if err := c.persist.DeleteSession(ctx); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "session_store_delete_failed",
				"err", err.Error(),
			)
		}
	}
	if err := c.refresher.Logout(ctx); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "logout_failed",
			"err", err.Error(),
		)
	}
}

// StartRefresher re-validates the session on the interval purely to keep
// the cache warm. Failures are logged, never escalated: the next
// synchronous call retries and surfaces the failure to its caller.
// The returned stop function is idempotent.
func (c *Cache) StartRefresher(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultRefreshInterval
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
				if _, err := c.Validate(ctx); err != nil {
					logger.ContextKV(ctx, xlog.WARNING,
						"status", "background_refresh_failed",
						"err", err.Error(),
					)
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(stopCh) })
	}
}
