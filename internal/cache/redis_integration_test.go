//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewRedisIdempotencyStore(startRedis(t), "test:", time.Minute)
	require.NoError(t, s.Ping(ctx))

	r, err := s.Begin(ctx, "pay-1")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = s.Begin(ctx, "pay-1")
	require.ErrorIs(t, err, ErrInProgress)

	want := Response{Status: 201, ContentType: "application/json", Body: []byte(`{"id":"tx"}`)}
	require.NoError(t, s.Complete(ctx, "pay-1", want))

	r, err = s.Begin(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, want, *r)

	require.NoError(t, s.Release(ctx, "pay-1"))
	r, err = s.Begin(ctx, "pay-1")
	require.NoError(t, err)
	assert.Nil(t, r)
}
