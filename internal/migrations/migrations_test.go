package migrations

import (
	"database/sql"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEmbeddedMigrations_PairedUpAndDown checks every embedded .up.sql file
// has a matching .down.sql sibling, the same failure mode a typo in a new
// migration's filename would otherwise only surface at Up() time.
func TestEmbeddedMigrations_PairedUpAndDown(t *testing.T) {
	entries, err := sqlFS.ReadDir("sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range names {
		switch {
		case hasSuffix(n, ".up.sql"):
			down := n[:len(n)-len(".up.sql")] + ".down.sql"
			require.True(t, seen[down], "%s has no matching %s", n, down)
		case hasSuffix(n, ".down.sql"):
			up := n[:len(n)-len(".down.sql")] + ".up.sql"
			require.True(t, seen[up], "%s has no matching %s", n, up)
		default:
			t.Fatalf("unexpected file in sql/: %s", n)
		}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// TestUp_AgainstLivePostgres only runs when ARBITER_TEST_POSTGRES_DSN is
// set to a reachable Postgres connection string — there is no in-process
// substitute for the postgres-dialect golang-migrate driver this package
// wraps (unlike internal/debate's SQLStore, which gets equivalent coverage
// from gorm.io/driver/sqlite).
func TestUp_AgainstLivePostgres(t *testing.T) {
	dsn := os.Getenv("ARBITER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARBITER_TEST_POSTGRES_DSN not set; skipping live-database migration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Up(db))
	// Idempotent: applying again against an already-migrated schema is a no-op.
	require.NoError(t, Up(db))

	var tableCount int
	err = db.QueryRow(`SELECT count(*) FROM information_schema.tables WHERE table_name = 'debates'`).Scan(&tableCount)
	require.NoError(t, err)
	require.Equal(t, 1, tableCount)
}
