package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// schema. Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runTestMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runTestMigrations applies the ledger_closes schema. The embedded
// migrations package lives above this one, so the schema is applied
// directly to avoid an import cycle.
func runTestMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	schema := `
		CREATE TABLE IF NOT EXISTS ledger_closes (
			id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			endpoint          TEXT        NOT NULL,
			ledger_index      BIGINT      NOT NULL,
			validated_ledgers TEXT        NOT NULL DEFAULT '',
			reserve_base      DOUBLE PRECISION NOT NULL DEFAULT 0,
			reserve_inc       DOUBLE PRECISION NOT NULL DEFAULT 0,
			txn_count         BIGINT      NOT NULL DEFAULT 0,
			observed_at       BIGINT      NOT NULL,
			UNIQUE (endpoint, ledger_index)
		)
	`
	_, err := pool.Exec(ctx, schema)
	require.NoError(t, err, "failed to apply test schema")
}
