// Package databasetest starts a throwaway Postgres for integration tests.
package databasetest

import (
	"context"
	"testing"

	"github.com/portalguard/portalguard/internal/platform/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ConnString starts a Postgres container and returns its connection string.
// The container is terminated when the test finishes.
func ConnString(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("portalguard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

// NewPool returns a migrated pool backed by a fresh container.
func NewPool(t *testing.T) *database.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := database.Connect(ctx, ConnString(t), 5)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}
