package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// overridable in tests
var nowFunc = time.Now

// The redis store implements the SessionStore interface using Redis as the
// backend, so multiple gateway instances share one validated session.
// The key namespace is organized as follows:
// - `/<prefix>/toolgate/session` for the current session

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed SessionStore.
func NewRedisStore(client *redis.Client, prefix string) SessionStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) sessionKey() string {
	return path.Join(m.prefix, "toolgate", "session")
}

func (m *redisStore) GetSession(ctx context.Context) (*SessionInfo, error) {
	data, err := m.client.Get(ctx, m.sessionKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load session from Redis")
	}

	var session SessionInfo
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}
	return &session, nil
}

func (m *redisStore) PutSession(ctx context.Context, session *SessionInfo) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	// expire the key with the session itself
	ttl := session.ExpiresAt.Sub(nowFunc())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	err = m.client.Set(ctx, m.sessionKey(), data, ttl).Err()
	if err != nil {
		return errors.Wrap(err, "failed to store session in Redis")
	}
	return nil
}

func (m *redisStore) DeleteSession(ctx context.Context) error {
	err := m.client.Del(ctx, m.sessionKey()).Err()
	if err != nil {
		return errors.Wrap(err, "failed to delete session from Redis")
	}
	return nil
}
