package store

import (
	"context"

	"sentiq/internal/models"
)

// RecordRegistry is the metadata persistence surface for upload records.
//
// Registration and every state transition run as short single-writer
// transactions; no registry call is ever held across a classification.
type RecordRegistry interface {
	RegisterRecord(ctx context.Context, logicalID, filename, digest string, size int64) (RegisterResult, error)
	SetState(ctx context.Context, logicalID string, next models.RecordState) error
	CompleteSuccess(ctx context.Context, logicalID, outputDigest string, outputSize int64) error
	CompleteFailure(ctx context.Context, logicalID string, cause error) error

	GetRecord(ctx context.Context, logicalID string) (*models.Record, error)
	ResolveCanonical(ctx context.Context, logicalID string) (string, error)
	Filename(ctx context.Context, logicalID string) (string, error)
	ContentRef(ctx context.Context, logicalID string) (string, int64, error)
	GetBlob(ctx context.Context, digest string) (*models.Blob, error)
}

var _ RecordRegistry = (*Store)(nil)
