package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minegov/royalty-engine/internal/config"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_Success(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(config.RedisConfig{Addr: "localhost:1"}, logging.NewNopLogger())
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Nil(t, client)
}

func TestClient_Operations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", 0).Err())

	val, err := client.Get(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.Equal(t, "bar", val)

	deleted, err := client.Del(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	exists, err := client.Exists(ctx, "foo").Result()
	assert.NoError(t, err)
	assert.Zero(t, exists)

	n, err := client.Incr(ctx, "counter").Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_Close(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	err = client.Get(context.Background(), "foo").Err()
	assert.Equal(t, ErrClientClosed, err)
}
