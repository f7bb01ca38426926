package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no canonical copy exists for a digest.
var ErrNotFound = errors.New("blob not found")

// Staged describes a fully ingested payload waiting in the staging area.
// The digest and size are final; the bytes are not yet published.
type Staged struct {
	Digest    string
	SizeBytes int64

	path string
}

// BlobStore is the content-addressed byte storage abstraction.
type BlobStore interface {
	// Stage consumes the stream once, hashing while writing to a private
	// staging file. The result must be either Claimed or Discarded.
	Stage(ctx context.Context, r io.Reader) (*Staged, error)

	// Claim atomically publishes a staged payload as the canonical copy for
	// its digest. It returns false when a concurrent ingestion already holds
	// the canonical copy. The staging file survives either outcome, so a
	// lost claim can be retried if the winner's copy is removed before the
	// caller finishes; callers always Discard when done.
	Claim(ctx context.Context, staged *Staged) (bool, error)

	// Discard drops the staging file. Safe after a successful Claim: the
	// canonical copy is an independent link.
	Discard(staged *Staged)

	// Put is Stage, Claim, Discard in one call, for callers that do not
	// need the intermediate result.
	Put(ctx context.Context, r io.Reader) (digest string, size int64, err error)

	Open(ctx context.Context, digest string) (io.ReadCloser, error)
	Remove(ctx context.Context, digest string) error
}
