package store

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return count == 1
}

func TestRunMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != latestVersion() {
		t.Fatalf("expected version %d, got %d", latestVersion(), version)
	}

	for _, table := range []string{"records", "blobs"} {
		if !tableExists(t, db, table) {
			t.Fatalf("%s table not created", table)
		}
	}

	// The fresh-install path must produce the final shape directly.
	if _, err := db.Exec(`
		INSERT INTO records (logical_id, filename, uploaded_at, digest, size_bytes, state, canonical_id, output_digest, output_size, failure_cause)
		VALUES ('r1', 'a.csv', '2026-01-01T00:00:00Z', NULL, 0, 'pending', NULL, NULL, 0, NULL)
	`); err != nil {
		t.Fatalf("final schema incomplete: %v", err)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db); err != nil {
		t.Fatalf("second run: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != latestVersion() {
		t.Fatalf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestRunMigrationsUpgradesV1WithoutDataLoss(t *testing.T) {
	db := testRawDB(t)

	// A deployment stopped at version 1: records exist, no content columns.
	if err := ensureMigrationsTable(db); err != nil {
		t.Fatalf("migrations table: %v", err)
	}
	if _, err := db.Exec(migrations[0].SQL); err != nil {
		t.Fatalf("install v1 schema: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (1, datetime('now'))"); err != nil {
		t.Fatalf("stamp v1: %v", err)
	}
	if _, err := db.Exec("INSERT INTO records (logical_id, filename, uploaded_at) VALUES ('old-1', 'legacy.csv', '2025-06-01T00:00:00Z')"); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != latestVersion() {
		t.Fatalf("expected version %d, got %d", latestVersion(), version)
	}

	// The legacy row survived and picked up the new columns' defaults.
	var filename, state string
	if err := db.QueryRow("SELECT filename, state FROM records WHERE logical_id = 'old-1'").Scan(&filename, &state); err != nil {
		t.Fatalf("read legacy row: %v", err)
	}
	if filename != "legacy.csv" {
		t.Fatalf("legacy filename lost: %q", filename)
	}
	if state != "pending" {
		t.Fatalf("expected default state pending, got %q", state)
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 {
		t.Fatalf("fresh db should be version 0, got %d", plan.CurrentVersion)
	}
	if plan.AvailableVersion != latestVersion() {
		t.Fatalf("available version %d, want %d", plan.AvailableVersion, latestVersion())
	}
	if len(plan.Pending) != len(migrations) {
		t.Fatalf("expected %d pending, got %d", len(migrations), len(plan.Pending))
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	plan, err = MigrationPlan(db)
	if err != nil {
		t.Fatalf("plan after migrate: %v", err)
	}
	if len(plan.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %d", len(plan.Pending))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("open with empty path should fail")
	}
}
