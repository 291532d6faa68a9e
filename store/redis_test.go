package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/toolgate/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisStore(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)

	rs := client.Ping(ctx) // Ensure the connection is established
	require.NoError(t, rs.Err(), "failed to connect to Redis")

	prefix := fmt.Sprintf("test-%d", time.Now().Unix())
	st := store.NewRedisStore(client, prefix)

	got, err := st.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	expired := &store.SessionInfo{
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	assert.EqualError(t, st.PutSession(ctx, expired), "session already expired")

	session := &store.SessionInfo{
		Token:     "token1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, st.PutSession(ctx, session))

	got, err = st.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "token1", got.Token)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)

	require.NoError(t, st.DeleteSession(ctx))
	got, err = st.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
