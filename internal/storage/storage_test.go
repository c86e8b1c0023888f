package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteAppliesMigrations(t *testing.T) {
	db, err := Open(context.Background(), DefaultSQLiteConfig(":memory:"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"memory", "token_usage", "jobs", "schema_migrations"} {
		var name string
		row := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table)
		require.NoError(t, row.Scan(&name), "missing table %s", table)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db, err := Open(context.Background(), DefaultSQLiteConfig(":memory:"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db, DriverSQLite))
	require.NoError(t, Migrate(context.Background(), db, DriverSQLite))
}

func TestRebind_PostgresNumbersPlaceholders(t *testing.T) {
	out := Rebind(DriverPostgres, `SELECT * FROM t WHERE a = ? AND b = ?`)
	require.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, out)
}

func TestRebind_SQLiteLeavesQueryUnchanged(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ?`
	require.Equal(t, q, Rebind(DriverSQLite, q))
}
