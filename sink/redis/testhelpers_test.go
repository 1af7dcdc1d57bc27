//go:build integration

package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// SetupRedisClient starts a Redis testcontainer and returns a client connected to it
func SetupRedisClient(t *testing.T, ctx context.Context) (*goredis.Client, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	addr = strings.TrimPrefix(addr, "redis://")

	time.Sleep(1 * time.Second)

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err())

	cleanup := func() {
		_ = client.Close()
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}
	return client, cleanup
}
