package postgres

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"Xcrol/internal/db/migrations"
)

// setupTestDB connects to TEST_DATABASE_URL and runs migrations.
// Tests skip when no database is configured.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, db.Ping(), "Failed to ping test database")

	require.NoError(t, migrations.Up(db), "Failed to run migrations")

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
