package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/config"
	"github.com/davidleathers/compliance-gateway/internal/testutil/containers"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := containers.Postgres(t)
	logger := zaptest.NewLogger(t)
	require.NoError(t, MigrateUp(url, logger))

	pool, err := NewPool(context.Background(), config.DatabaseConfig{URL: url, MaxOpenConns: 5}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestDNCEntryRepository_Integration(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewDNCEntryRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("upsert replaces fields and concatenates metadata", func(t *testing.T) {
		first, err := repo.Upsert(ctx, &dnc.Entry{
			PhoneNumber: "+19887654321",
			DateAdded:   now,
			Reason:      "User opted out",
			Source:      "manual",
			AddedBy:     "system",
			Status:      dnc.StatusActive,
			Metadata:    map[string]any{"campaign": "spring", "lastUpdated": "t1"},
		})
		require.NoError(t, err)
		assert.Equal(t, "spring", first.Metadata["campaign"])

		second, err := repo.Upsert(ctx, &dnc.Entry{
			PhoneNumber: "+19887654321",
			DateAdded:   now,
			Reason:      "Test",
			Source:      "api",
			AddedBy:     "ops",
			Status:      dnc.StatusActive,
			Metadata:    map[string]any{"lastUpdated": "t2"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Test", second.Reason)
		assert.Equal(t, "api", second.Source)
		assert.Equal(t, "spring", second.Metadata["campaign"])
		assert.Equal(t, "t2", second.Metadata["lastUpdated"])

		found, err := repo.FindActive(ctx, "+19887654321", now)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Test", found.Reason)
		assert.Nil(t, found.ExpirationDate)
	})

	t.Run("expired and inactive rows are invisible", func(t *testing.T) {
		past := now.Add(-time.Hour)
		_, err := repo.Upsert(ctx, &dnc.Entry{
			PhoneNumber: "+12025550101", DateAdded: now, Reason: "r", Source: "s", AddedBy: "a",
			Status: dnc.StatusActive, Metadata: map[string]any{}, ExpirationDate: &past,
		})
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, &dnc.Entry{
			PhoneNumber: "+12025550102", DateAdded: now, Reason: "r", Source: "s", AddedBy: "a",
			Status: dnc.StatusInactive, Metadata: map[string]any{},
		})
		require.NoError(t, err)

		for _, phone := range []string{"+12025550101", "+12025550102", "+12025550199"} {
			found, err := repo.FindActive(ctx, phone, now)
			require.NoError(t, err)
			assert.Nil(t, found, phone)
		}
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "+19887654321"))
		err := repo.Delete(ctx, "+19887654321")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})
}

func TestMigrations_Reversible(t *testing.T) {
	m, db, err := NewMigrator(containers.Postgres(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	var indexes int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM pg_indexes
		WHERE tablename = 'dnc_entries' AND indexname = 'idx_dnc_entries_status_expiration'
	`).Scan(&indexes))
	assert.Equal(t, 1, indexes)

	require.NoError(t, m.Down())

	var tables int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'dnc_entries'
	`).Scan(&tables))
	assert.Zero(t, tables)
}
