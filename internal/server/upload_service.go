package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sentiq/internal/blobstore"
	"sentiq/internal/metrics"
	"sentiq/internal/models"
	"sentiq/internal/pipeline"
	"sentiq/internal/store"
	"sentiq/internal/worker"
)

const fallbackFilename = "upload.csv"

// UploadService is the surface the HTTP layer consumes: submit a stream,
// query status, fetch results. All content flows through the content store;
// all metadata through the record registry.
type UploadService struct {
	registry store.RecordRegistry
	blobs    blobstore.BlobStore
	pool     *worker.Pool
	progress *pipeline.Progress
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewUploadService constructs an UploadService.
func NewUploadService(registry store.RecordRegistry, blobs blobstore.BlobStore, pool *worker.Pool, progress *pipeline.Progress, logger *slog.Logger, m *metrics.Metrics) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{
		registry: registry,
		blobs:    blobs,
		pool:     pool,
		progress: progress,
		logger:   logger,
		metrics:  m,
	}
}

// SubmitResult reports one accepted upload.
type SubmitResult struct {
	LogicalID   string
	IsDuplicate bool
	Digest      string
	SizeBytes   int64
}

// Submit ingests one upload: stage (hash while writing), claim the canonical
// copy, register the record, and enqueue processing unless the content is
// already owned by a live canonical record. An empty logicalID gets a fresh
// random id; a caller-supplied id replaces any previous record under it.
func (s *UploadService) Submit(ctx context.Context, r io.Reader, filename, logicalID string) (SubmitResult, error) {
	var zero SubmitResult
	if s == nil || s.registry == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("upload service is not configured"))
	}
	if r == nil {
		return zero, badRequest(fmt.Errorf("content is required"))
	}

	logicalID = strings.TrimSpace(logicalID)
	if logicalID == "" {
		logicalID = uuid.NewString()
	} else if !validLogicalID(logicalID) {
		return zero, badRequest(fmt.Errorf("invalid task id"))
	}

	staged, err := s.blobs.Stage(ctx, r)
	if err != nil {
		return zero, fmt.Errorf("stage upload: %w", err)
	}
	defer s.blobs.Discard(staged)

	won, err := s.blobs.Claim(ctx, staged)
	if err != nil {
		return zero, fmt.Errorf("claim content: %w", err)
	}
	if !won {
		// Expected duplicate-race outcome: the winner's copy serves this
		// digest and the registry links the record to it below.
		s.logger.Debug("claim lost to concurrent ingestion", "digest", staged.Digest)
	}

	reg, err := s.registry.RegisterRecord(ctx, logicalID, sanitizeFilename(filename), staged.Digest, staged.SizeBytes)
	if err != nil {
		return zero, fmt.Errorf("register record: %w", err)
	}

	if !won && !reg.IsDuplicate {
		// The claim winner's record was replaced (and its blob removed)
		// before this registration committed; this record is now canonical,
		// so re-publish the staged copy to restore the content file.
		if _, err := s.blobs.Claim(ctx, staged); err != nil {
			return zero, fmt.Errorf("restore content %s: %w", staged.Digest, err)
		}
	}

	if reg.ReleasedDigest != "" {
		if err := s.blobs.Remove(ctx, reg.ReleasedDigest); err != nil {
			s.logger.Warn("orphaned blob not removed", "digest", reg.ReleasedDigest, "error", err)
		}
	}

	s.metrics.ObserveUpload(reg.IsDuplicate, staged.SizeBytes)

	if reg.IsDuplicate {
		s.logger.Info("duplicate upload linked",
			"logical_id", logicalID,
			"canonical_id", reg.CanonicalID,
			"digest", staged.Digest,
		)
	} else if s.pool != nil {
		// Processing outlives the upload request.
		if !s.pool.Submit(worker.Job{Ctx: context.Background(), LogicalID: logicalID}) {
			return zero, internalError(fmt.Errorf("worker pool is shut down"))
		}
	}

	return SubmitResult{
		LogicalID:   logicalID,
		IsDuplicate: reg.IsDuplicate,
		Digest:      staged.Digest,
		SizeBytes:   staged.SizeBytes,
	}, nil
}

// StatusResult is the externally observed status of one record. Duplicates
// mirror their canonical record.
type StatusResult struct {
	State       models.RecordState
	Current     int
	Total       int
	HasProgress bool
}

// Status resolves the duplicate link (one hop) and reports the canonical
// record's state, with advisory progress counters while it is processing.
func (s *UploadService) Status(ctx context.Context, logicalID string) (StatusResult, error) {
	var zero StatusResult

	canonicalID, err := s.registry.ResolveCanonical(ctx, logicalID)
	if err != nil {
		return zero, err
	}
	record, err := s.registry.GetRecord(ctx, canonicalID)
	if errors.Is(err, store.ErrNotFound) && canonicalID != logicalID {
		// The canonical record was replaced between the two reads and the
		// duplicate has been re-pointed; resolve again.
		canonicalID, err = s.registry.ResolveCanonical(ctx, logicalID)
		if err != nil {
			return zero, err
		}
		record, err = s.registry.GetRecord(ctx, canonicalID)
	}
	if err != nil {
		return zero, err
	}

	result := StatusResult{State: record.State}
	if record.State == models.StateProcessing && s.progress != nil {
		if current, total, ok := s.progress.Get(canonicalID); ok {
			result.Current = current
			result.Total = total
			result.HasProgress = true
		}
	}
	return result, nil
}

// FetchOutput streams the processed artifact for a record. The bytes come
// from the canonical record's output; the download name uses the requested
// record's own original filename.
func (s *UploadService) FetchOutput(ctx context.Context, logicalID string) (io.ReadCloser, string, int64, error) {
	record, err := s.registry.GetRecord(ctx, logicalID)
	if err != nil {
		return nil, "", 0, err
	}

	canonical := record
	if record.IsDuplicate() {
		canonical, err = s.registry.GetRecord(ctx, record.CanonicalID)
		if err != nil {
			return nil, "", 0, err
		}
	}
	if canonical.State != models.StateSuccess || canonical.OutputDigest == "" {
		return nil, "", 0, fmt.Errorf("record %s has no output: %w", logicalID, store.ErrNotFound)
	}

	rc, err := s.blobs.Open(ctx, canonical.OutputDigest)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, "", 0, fmt.Errorf("output %s: %w", canonical.OutputDigest, store.ErrNotFound)
		}
		return nil, "", 0, err
	}

	return rc, "processed_" + record.Filename, canonical.OutputSize, nil
}

// FetchOriginalFilename returns the sanitized filename supplied at upload.
func (s *UploadService) FetchOriginalFilename(ctx context.Context, logicalID string) (string, error) {
	return s.registry.Filename(ctx, logicalID)
}

// sanitizeFilename strips any path components and characters that are not
// safe in a Content-Disposition filename.
func sanitizeFilename(raw string) string {
	name := filepath.Base(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "\\", "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return fallbackFilename
	}
	return cleaned
}

func validLogicalID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
