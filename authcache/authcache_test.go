package authcache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/authcache"
	"github.com/effective-security/toolgate/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (v *fakeValidator) ValidateConnection(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

func (v *fakeValidator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeRefresher struct {
	authenticated bool
	refreshErr    error
	refreshCalls  int
	tokens        *authcache.TokenSet
	loadErr       error
	loggedOut     bool
}

func (r *fakeRefresher) IsAuthenticated(ctx context.Context) bool { return r.authenticated }

func (r *fakeRefresher) RefreshAccessToken(ctx context.Context) error {
	r.refreshCalls++
	if r.refreshErr != nil {
		return r.refreshErr
	}
	r.authenticated = true
	return nil
}

func (r *fakeRefresher) LoadTokens(ctx context.Context) (*authcache.TokenSet, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.tokens, nil
}

func (r *fakeRefresher) Logout(ctx context.Context) error {
	r.loggedOut = true
	return nil
}

func Test_ValidateCacheHit(t *testing.T) {
	ctx := context.Background()
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok", ExpiresIn: 600},
	}
	c := authcache.New(validator, refresher)

	s1, err := c.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", s1.Token)
	assert.Equal(t, 1, validator.Calls())

	// second validation with an unexpired session performs zero remote calls
	s2, err := c.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, s1.Token, s2.Token)
	assert.Equal(t, 1, validator.Calls())
}

func Test_ValidateDefaultExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok"},
	}
	c := authcache.New(validator, refresher, authcache.WithClock(func() time.Time { return now }))

	s, err := c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt)
}

func Test_ValidateExpiredSessionRevalidates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok", ExpiresIn: 60},
	}
	c := authcache.New(validator, refresher, authcache.WithClock(clock))

	_, err := c.Validate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, validator.Calls())

	now = now.Add(61 * time.Second)
	_, err = c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, validator.Calls())
}

func Test_ValidateConnectionFailure(t *testing.T) {
	validator := &fakeValidator{err: errors.New("instance unreachable")}
	refresher := &fakeRefresher{authenticated: true}
	c := authcache.New(validator, refresher)

	_, err := c.Validate(context.Background())
	require.Error(t, err)
	assert.EqualError(t, err, "connection validation failed: instance unreachable")
	assert.Equal(t, 0, refresher.refreshCalls)
}

func Test_ValidateRefreshFailure(t *testing.T) {
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: false,
		refreshErr:    errors.New("refresh token revoked"),
	}
	c := authcache.New(validator, refresher)

	_, err := c.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, authcache.ErrNotAuthenticated))
	assert.EqualError(t, err, "not authenticated: re-authenticate via the configured login flow")
}

func Test_ValidateRefreshSucceeds(t *testing.T) {
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: false,
		tokens:        &authcache.TokenSet{AccessToken: "fresh", ExpiresIn: 600},
	}
	c := authcache.New(validator, refresher)

	s, err := c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.Token)
	assert.Equal(t, 1, refresher.refreshCalls)
}

func Test_ValidateLoadTokensFailure(t *testing.T) {
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		loadErr:       errors.New("keychain unavailable"),
	}
	c := authcache.New(validator, refresher)

	_, err := c.Validate(context.Background())
	assert.EqualError(t, err, "failed to load tokens: keychain unavailable")
}

func Test_WarmStartFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutSession(ctx, &store.SessionInfo{
		Token:     "persisted",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	validator := &fakeValidator{}
	refresher := &fakeRefresher{authenticated: true}
	c := authcache.New(validator, refresher, authcache.WithSessionStore(st))

	s, err := c.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", s.Token)
	// no remote calls needed
	assert.Equal(t, 0, validator.Calls())
}

func Test_PersistOnValidate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok", ExpiresIn: 600},
	}
	c := authcache.New(validator, refresher, authcache.WithSessionStore(st))

	_, err := c.Validate(ctx)
	require.NoError(t, err)

	persisted, err := st.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "tok", persisted.Token)
}

func Test_Logout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok", ExpiresIn: 600},
	}
	c := authcache.New(validator, refresher, authcache.WithSessionStore(st))

	_, err := c.Validate(ctx)
	require.NoError(t, err)

	c.Logout(ctx)
	assert.True(t, refresher.loggedOut)

	persisted, err := st.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, persisted)

	// next validation goes remote again
	_, err = c.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, validator.Calls())
}

func Test_StartRefresher(t *testing.T) {
	validator := &fakeValidator{}
	refresher := &fakeRefresher{
		authenticated: true,
		tokens:        &authcache.TokenSet{AccessToken: "tok", ExpiresIn: 600},
	}
	c := authcache.New(validator, refresher)

	stop := c.StartRefresher(context.Background(), 10*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		return validator.Calls() >= 1
	}, time.Second, 5*time.Millisecond)

	stop()
	stop() // idempotent
}
