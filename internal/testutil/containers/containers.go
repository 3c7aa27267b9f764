// Package containers starts disposable backing services for integration
// tests. Each helper skips in short mode and terminates its container when
// the test ends.
package containers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"

	startupTimeout = 60 * time.Second
)

// Postgres starts an empty compliance_test database and returns its URL.
func Postgres(t testing.TB) string {
	return start(t, "postgres",
		func(ctx context.Context) (*postgres.PostgresContainer, error) {
			return postgres.Run(ctx, postgresImage,
				postgres.WithDatabase("compliance_test"),
				postgres.WithUsername("compliance"),
				postgres.WithPassword("compliance"),
				testcontainers.WithWaitStrategy(
					wait.ForLog("database system is ready to accept connections").
						WithOccurrence(2).
						WithStartupTimeout(startupTimeout),
				),
			)
		},
		func(ctx context.Context, c *postgres.PostgresContainer) (string, error) {
			return c.ConnectionString(ctx, "sslmode=disable")
		},
	)
}

// Redis starts a Redis instance and returns a redis:// URL for it.
func Redis(t testing.TB) string {
	return start(t, "redis",
		func(ctx context.Context) (*redis.RedisContainer, error) {
			return redis.Run(ctx, redisImage, redis.WithLogLevel(redis.LogLevelNotice))
		},
		func(ctx context.Context, c *redis.RedisContainer) (string, error) {
			return c.ConnectionString(ctx)
		},
	)
}

func start[C testcontainers.Container](
	t testing.TB,
	name string,
	run func(context.Context) (C, error),
	url func(context.Context, C) (string, error),
) string {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := run(ctx)
	require.NoError(t, err, "start %s container", name)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("terminate %s container: %v", name, err)
		}
	})

	u, err := url(ctx, c)
	require.NoError(t, err, "%s connection string", name)
	return u
}
