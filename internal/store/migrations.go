package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one append-only schema migration step. Steps are idempotent:
// creations are guarded and the version stamp is the last statement of the
// step's transaction, so a crash mid-chain is safe to re-run.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations. Never edit a past
// step; append a new one.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: records table keyed by logical id",
		SQL: `
CREATE TABLE IF NOT EXISTS records (
  logical_id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  uploaded_at TEXT NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "content addressing: blobs table, digest/size/state on records",
		SQL: `
CREATE TABLE IF NOT EXISTS blobs (
  digest TEXT PRIMARY KEY,
  size_bytes INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

ALTER TABLE records ADD COLUMN digest TEXT REFERENCES blobs(digest);
ALTER TABLE records ADD COLUMN size_bytes INTEGER NOT NULL DEFAULT 0;
ALTER TABLE records ADD COLUMN state TEXT NOT NULL DEFAULT 'pending';

CREATE INDEX IF NOT EXISTS idx_records_digest ON records(digest);
`,
	},
	{
		Version:     3,
		Description: "duplicate redirects and output artifacts on records",
		SQL: `
ALTER TABLE records ADD COLUMN canonical_id TEXT;
ALTER TABLE records ADD COLUMN output_digest TEXT;
ALTER TABLE records ADD COLUMN output_size INTEGER NOT NULL DEFAULT 0;
ALTER TABLE records ADD COLUMN failure_cause TEXT;

CREATE INDEX IF NOT EXISTS idx_records_canonical ON records(canonical_id);
CREATE INDEX IF NOT EXISTS idx_records_digest_uploaded ON records(digest, uploaded_at);
`,
	},
}

// currentSchemaSQL is the final shape, used for fresh installs. A version-0
// store runs this once instead of replaying the chain, so intermediate
// shapes that never coexisted in one deployment are never materialized.
const currentSchemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
  digest TEXT PRIMARY KEY,
  size_bytes INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
  logical_id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  uploaded_at TEXT NOT NULL,
  digest TEXT REFERENCES blobs(digest),
  size_bytes INTEGER NOT NULL DEFAULT 0,
  state TEXT NOT NULL DEFAULT 'pending',
  canonical_id TEXT,
  output_digest TEXT,
  output_size INTEGER NOT NULL DEFAULT 0,
  failure_cause TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_digest ON records(digest);
CREATE INDEX IF NOT EXISTS idx_records_canonical ON records(canonical_id);
CREATE INDEX IF NOT EXISTS idx_records_digest_uploaded ON records(digest, uploaded_at);
`

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// CurrentVersion reports the stored schema version of an opened store.
func (s *Store) CurrentVersion() (int, error) {
	return currentVersion(s.db)
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func latestVersion() int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// runMigrations brings the store to the latest schema version. A migration
// failure aborts with the full version span; the store is never left between
// steps because each step commits atomically.
func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	if current == 0 {
		return installCurrentSchema(db)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return migrationFailed(current, m.Version, fmt.Errorf("begin: %w", err))
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return migrationFailed(current, m.Version, fmt.Errorf("%s: %w", m.Description, err))
		}

		// Version bump last: a replayed step that crashed before this
		// point re-runs its guarded DDL and stamps cleanly.
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return migrationFailed(current, m.Version, fmt.Errorf("record version: %w", err))
		}

		if err := tx.Commit(); err != nil {
			return migrationFailed(current, m.Version, fmt.Errorf("commit: %w", err))
		}
		current = m.Version
	}

	return nil
}

func installCurrentSchema(db *sql.DB) error {
	target := latestVersion()

	tx, err := db.Begin()
	if err != nil {
		return migrationFailed(0, target, fmt.Errorf("begin: %w", err))
	}

	if _, err := tx.Exec(currentSchemaSQL); err != nil {
		_ = tx.Rollback()
		return migrationFailed(0, target, fmt.Errorf("install current schema: %w", err))
	}
	for _, m := range sortedMigrations() {
		if _, err := tx.Exec("INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return migrationFailed(0, target, fmt.Errorf("record version %d: %w", m.Version, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return migrationFailed(0, target, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func migrationFailed(from, to int, cause error) error {
	return fmt.Errorf("migration failed (version %d -> %d): %w", from, to, cause)
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
