package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sentiq/internal/models"
)

const recordColumns = "logical_id, filename, uploaded_at, digest, size_bytes, state, canonical_id, output_digest, output_size, failure_cause"

// RegisterResult reports the outcome of registering one upload.
type RegisterResult struct {
	// IsDuplicate is true when the content is already owned by a canonical
	// record; the new record redirects to CanonicalID and must not be
	// processed.
	IsDuplicate bool
	CanonicalID string

	// ReleasedDigest is the digest of a blob that lost its last reference
	// when the logical id was resubmitted. The caller owns removing the
	// canonical copy from the content store.
	ReleasedDigest string
}

// RegisterRecord creates the record for one ingested upload.
//
// Resubmission of an existing logical id fully replaces the previous record
// first. If a live canonical record already owns the digest, the new record
// is stored as a depth-1 duplicate redirect; records in Failed state are
// never redirect targets, so re-uploading failed content starts a fresh
// canonical attempt.
func (s *Store) RegisterRecord(ctx context.Context, logicalID, filename, digest string, size int64) (result RegisterResult, err error) {
	logicalID = strings.TrimSpace(logicalID)
	digest = strings.ToLower(strings.TrimSpace(digest))
	if logicalID == "" {
		return result, fmt.Errorf("logical id is required")
	}
	if digest == "" {
		return result, fmt.Errorf("digest is required")
	}
	if size < 0 {
		return result, fmt.Errorf("size_bytes must be >= 0")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	released, err := deleteRecordTx(ctx, tx, logicalID)
	if err != nil {
		return result, err
	}
	result.ReleasedDigest = released

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (digest, size_bytes, created_at)
		VALUES (?, ?, ?)
	`, digest, size, formatTime(now)); err != nil {
		return result, err
	}

	canonical, err := findCanonicalForDigestTx(ctx, tx, digest)
	if err != nil {
		return result, err
	}

	state := models.StatePending
	canonicalID := any(nil)
	if canonical != nil {
		// Mirror the canonical state at insert time; status queries always
		// resolve through the canonical record, so this is informational.
		state = canonical.State
		canonicalID = canonical.LogicalID
		result.IsDuplicate = true
		result.CanonicalID = canonical.LogicalID
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO records (logical_id, filename, uploaded_at, digest, size_bytes, state, canonical_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, logicalID, filename, formatTime(now), digest, size, string(state), canonicalID); err != nil {
		return result, err
	}

	// Resubmission may have released the digest we just re-registered.
	if result.ReleasedDigest == digest {
		result.ReleasedDigest = ""
	}

	if err = tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// SetState applies one lifecycle transition. The read, the legality check,
// and the write share one transaction on the single writer connection, so
// transitions for a record are totally ordered. Duplicate redirects never
// transition.
func (s *Store) SetState(ctx context.Context, logicalID string, next models.RecordState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, isDuplicate, err := recordStateTx(ctx, tx, logicalID)
	if err != nil {
		return err
	}
	if isDuplicate {
		return fmt.Errorf("record %s is a duplicate redirect: %w", logicalID, ErrInvalidTransition)
	}
	if !models.CanTransition(current, next) {
		return fmt.Errorf("record %s: %s -> %s: %w", logicalID, current, next, ErrInvalidTransition)
	}

	if _, err = tx.ExecContext(ctx, "UPDATE records SET state = ? WHERE logical_id = ?", string(next), logicalID); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteSuccess finishes a record: PostProcessing -> Success with the
// output artifact reference recorded in the same transaction, so a Success
// state always has a valid content reference.
func (s *Store) CompleteSuccess(ctx context.Context, logicalID, outputDigest string, outputSize int64) (err error) {
	outputDigest = strings.ToLower(strings.TrimSpace(outputDigest))
	if outputDigest == "" {
		return fmt.Errorf("output digest is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, isDuplicate, err := recordStateTx(ctx, tx, logicalID)
	if err != nil {
		return err
	}
	if isDuplicate || !models.CanTransition(current, models.StateSuccess) {
		return fmt.Errorf("record %s: %s -> %s: %w", logicalID, current, models.StateSuccess, ErrInvalidTransition)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE records SET state = ?, output_digest = ?, output_size = ? WHERE logical_id = ?
	`, string(models.StateSuccess), outputDigest, outputSize, logicalID); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteFailure moves a record to Failed and records the cause. Retrying
// is the surrounding queue's business, not the registry's.
func (s *Store) CompleteFailure(ctx context.Context, logicalID string, cause error) (err error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, isDuplicate, err := recordStateTx(ctx, tx, logicalID)
	if err != nil {
		return err
	}
	if isDuplicate || !models.CanTransition(current, models.StateFailed) {
		return fmt.Errorf("record %s: %s -> %s: %w", logicalID, current, models.StateFailed, ErrInvalidTransition)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE records SET state = ?, failure_cause = ? WHERE logical_id = ?
	`, string(models.StateFailed), nullIfEmpty(message), logicalID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRecord returns one record by logical id.
func (s *Store) GetRecord(ctx context.Context, logicalID string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE logical_id = ?`, logicalID)
	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("record %s: %w", logicalID, ErrNotFound)
	}
	return record, nil
}

// ResolveCanonical follows the duplicate link, one hop at most. Register
// enforces that duplicates always point at a non-duplicate record.
func (s *Store) ResolveCanonical(ctx context.Context, logicalID string) (string, error) {
	record, err := s.GetRecord(ctx, logicalID)
	if err != nil {
		return "", err
	}
	if record.CanonicalID != "" {
		return record.CanonicalID, nil
	}
	return record.LogicalID, nil
}

// Filename returns the sanitized original filename for a record.
func (s *Store) Filename(ctx context.Context, logicalID string) (string, error) {
	record, err := s.GetRecord(ctx, logicalID)
	if err != nil {
		return "", err
	}
	return record.Filename, nil
}

// ContentRef returns the content digest and size for a record.
func (s *Store) ContentRef(ctx context.Context, logicalID string) (string, int64, error) {
	record, err := s.GetRecord(ctx, logicalID)
	if err != nil {
		return "", 0, err
	}
	return record.Digest, record.SizeBytes, nil
}

// GetBlob returns one blob row by digest.
func (s *Store) GetBlob(ctx context.Context, digest string) (*models.Blob, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	row := s.db.QueryRowContext(ctx, "SELECT digest, size_bytes, created_at FROM blobs WHERE digest = ?", digest)

	blob := models.Blob{}
	var createdAt string
	err := row.Scan(&blob.Digest, &blob.SizeBytes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("blob %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	blob.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

// deleteRecordTx removes a record for resubmission. If the record was the
// canonical target of duplicates, the earliest duplicate is promoted in its
// place (inheriting state, output and failure columns) and the remaining
// duplicates are re-pointed at it, preserving the depth-1 invariant. Returns
// the digest released when the last reference to a blob went away.
func deleteRecordTx(ctx context.Context, tx *sql.Tx, logicalID string) (string, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE logical_id = ?`, logicalID)
	old, err := scanRecord(row)
	if err != nil {
		return "", err
	}
	if old == nil {
		return "", nil
	}

	if err := promoteEarliestDuplicateTx(ctx, tx, old); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE logical_id = ?", logicalID); err != nil {
		return "", err
	}

	if old.Digest == "" {
		return "", nil
	}
	// A digest is still referenced when any record holds it as input OR as
	// its processed output: output artifacts share the content store, so an
	// input blob may be another record's Success result.
	var refs int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE digest = ? OR output_digest = ?", old.Digest, old.Digest).Scan(&refs); err != nil {
		return "", err
	}
	if refs > 0 {
		return "", nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM blobs WHERE digest = ?", old.Digest); err != nil {
		return "", err
	}
	return old.Digest, nil
}

func promoteEarliestDuplicateTx(ctx context.Context, tx *sql.Tx, old *models.Record) error {
	row := tx.QueryRowContext(ctx, `
		SELECT logical_id FROM records
		WHERE canonical_id = ?
		ORDER BY uploaded_at ASC, logical_id ASC
		LIMIT 1
	`, old.LogicalID)

	var promoted string
	err := row.Scan(&promoted)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE records
		SET canonical_id = NULL, state = ?, output_digest = ?, output_size = ?, failure_cause = ?
		WHERE logical_id = ?
	`, string(old.State), nullIfEmpty(old.OutputDigest), old.OutputSize, nullIfEmpty(old.FailureCause), promoted); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE records SET canonical_id = ? WHERE canonical_id = ? AND logical_id != ?
	`, promoted, old.LogicalID, promoted); err != nil {
		return err
	}
	return nil
}

// findCanonicalForDigestTx picks the redirect target for a digest: the
// earliest-uploaded non-duplicate record that has not terminally failed.
func findCanonicalForDigestTx(ctx context.Context, tx *sql.Tx, digest string) (*models.Record, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE digest = ? AND canonical_id IS NULL AND state != ?
		ORDER BY uploaded_at ASC, logical_id ASC
		LIMIT 1
	`, digest, string(models.StateFailed))
	return scanRecord(row)
}

func recordStateTx(ctx context.Context, tx *sql.Tx, logicalID string) (models.RecordState, bool, error) {
	var state string
	var canonicalID sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT state, canonical_id FROM records WHERE logical_id = ?", logicalID).Scan(&state, &canonicalID)
	if err == sql.ErrNoRows {
		return "", false, fmt.Errorf("record %s: %w", logicalID, ErrNotFound)
	}
	if err != nil {
		return "", false, err
	}
	parsed, err := models.ParseRecordState(state)
	if err != nil {
		return "", false, err
	}
	return parsed, canonicalID.Valid && canonicalID.String != "", nil
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.Record, error) {
	record := models.Record{}

	var uploadedAt, state string
	var digest, canonicalID, outputDigest, failureCause sql.NullString

	err := scanner.Scan(
		&record.LogicalID,
		&record.Filename,
		&uploadedAt,
		&digest,
		&record.SizeBytes,
		&state,
		&canonicalID,
		&outputDigest,
		&record.OutputSize,
		&failureCause,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	record.Digest = digest.String
	record.CanonicalID = canonicalID.String
	record.OutputDigest = outputDigest.String
	record.FailureCause = failureCause.String

	record.State, err = models.ParseRecordState(state)
	if err != nil {
		return nil, err
	}
	record.UploadedAt, err = parseTime(uploadedAt)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
