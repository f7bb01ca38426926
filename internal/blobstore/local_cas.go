package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const digestHexLength = sha256.Size * 2

// LocalCAS stores blob bytes in a local content-addressed tree, sharded by
// digest prefix. At most one physical file exists per digest.
type LocalCAS struct {
	root string
}

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// Stage streams bytes into a private staging file, computing SHA-256 as it
// writes. The canonical tree is never touched here, so concurrent readers
// cannot observe a partial payload.
func (c *LocalCAS) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "stage-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return &Staged{
		Digest:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
		path:      tmpPath,
	}, nil
}

// Claim publishes a staged payload under its digest. The publish is a single
// hard link, which fails if the destination already exists, so exactly one of
// any number of concurrent claimants for the same digest wins. The staging
// file is kept either way; losers may re-claim it, and the caller Discards
// it when done.
func (c *LocalCAS) Claim(ctx context.Context, staged *Staged) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if staged == nil || staged.path == "" {
		return false, fmt.Errorf("staged payload is required")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	dst, err := c.pathForDigest(staged.Digest)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}

	if err := os.Link(staged.path, dst); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Discard drops a staged payload without publishing it.
func (c *LocalCAS) Discard(staged *Staged) {
	if staged == nil || staged.path == "" {
		return
	}
	_ = os.Remove(staged.path)
}

// Put stages and claims in one call. A lost claim race is not an error: the
// winner's copy serves the digest either way.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	staged, err := c.Stage(ctx, r)
	if err != nil {
		return "", 0, err
	}
	defer c.Discard(staged)
	if _, err := c.Claim(ctx, staged); err != nil {
		return "", 0, err
	}
	return staged.Digest, staged.SizeBytes, nil
}

// Open returns a reader for the canonical copy of a digest.
func (c *LocalCAS) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathForDigest(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes the canonical copy for a digest. Missing files are ignored.
// Callers must not remove a digest while any record still references it.
func (c *LocalCAS) Remove(ctx context.Context, digest string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathForDigest(digest)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (c *LocalCAS) pathForDigest(digest string) (string, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) != digestHexLength {
		return "", fmt.Errorf("invalid digest %q", digest)
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid digest %q", digest)
		}
	}
	return filepath.Join(c.root, "sha256", digest[0:2], digest[2:4], digest), nil
}

var _ BlobStore = (*LocalCAS)(nil)
