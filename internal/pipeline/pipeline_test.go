package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"sentiq/internal/blobstore"
	"sentiq/internal/classify"
	"sentiq/internal/models"
	"sentiq/internal/store"
)

func testDeps(t *testing.T) (*store.Store, *blobstore.LocalCAS) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cas, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new cas: %v", err)
	}
	return s, cas
}

func registerCSV(t *testing.T, s *store.Store, cas *blobstore.LocalCAS, logicalID, content string) {
	t.Helper()
	ctx := context.Background()
	digest, size, err := cas.Put(ctx, strings.NewReader(content))
	if err != nil {
		t.Fatalf("put content: %v", err)
	}
	if _, err := s.RegisterRecord(ctx, logicalID, "input.csv", digest, size); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessSuccess(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "id,comment\n1,great stuff\n2,awful mess\n3,nothing special\n")

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != models.StateSuccess {
		t.Fatalf("state %s, want success", record.State)
	}
	if record.OutputDigest == "" {
		t.Fatal("no output digest recorded")
	}

	rc, err := cas.Open(ctx, record.OutputDigest)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	want := "id,comment,label\n1,great stuff,positive\n2,awful mess,negative\n3,nothing special,neutral\n"
	if string(out) != want {
		t.Fatalf("output mismatch:\ngot  %q\nwant %q", out, want)
	}
	if int64(len(out)) != record.OutputSize {
		t.Fatalf("output size %d, recorded %d", len(out), record.OutputSize)
	}

	// Terminal records have no progress counters.
	if _, _, ok := p.Progress().Get("u1"); ok {
		t.Fatal("progress not cleared after completion")
	}
}

func TestProcessMissingCommentColumn(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "id,text\n1,hello\n")

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u1"); err == nil {
		t.Fatal("expected failure for missing comment column")
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != models.StateFailed {
		t.Fatalf("state %s, want failed", record.State)
	}
	if !strings.Contains(record.FailureCause, "comment") {
		t.Fatalf("failure cause %q does not name the column", record.FailureCause)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "")

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u1"); err == nil {
		t.Fatal("expected failure for empty input")
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != models.StateFailed {
		t.Fatalf("state %s, want failed", record.State)
	}
}

func TestProcessHeaderOnlyInputSucceeds(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "comment\n")

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != models.StateSuccess {
		t.Fatalf("state %s, want success", record.State)
	}
}

func TestProcessClassifierFailure(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "comment\nfirst\nsecond\n")

	calls := 0
	failing := classify.Func(func(ctx context.Context, text string) (string, error) {
		calls++
		if calls > 1 {
			return "", classify.ErrClassificationFailed
		}
		return "neutral", nil
	})

	p := New(s, cas, failing, nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u1"); !errors.Is(err, classify.ErrClassificationFailed) {
		t.Fatalf("expected classification failure, got %v", err)
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != models.StateFailed {
		t.Fatalf("state %s, want failed", record.State)
	}
	if record.FailureCause == "" {
		t.Fatal("no failure cause recorded")
	}
}

func TestProcessRejectsDuplicates(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	content := "comment\ngreat\n"
	registerCSV(t, s, cas, "u1", content)
	registerCSV(t, s, cas, "u2", content)

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{})
	if err := p.Process(ctx, "u2"); err == nil {
		t.Fatal("processing a duplicate should fail fast")
	}

	// The duplicate is untouched: still pending-as-mirrored, still linked.
	record, err := s.GetRecord(ctx, "u2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.IsDuplicate() {
		t.Fatal("duplicate link lost")
	}
}

func TestProcessCustomColumns(t *testing.T) {
	s, cas := testDeps(t)
	ctx := context.Background()

	registerCSV(t, s, cas, "u1", "review\ngreat stuff\n")

	p := New(s, cas, classify.NewLexicon(), nil, quietLogger(), Options{
		CommentColumn: "review",
		LabelColumn:   "sentiment",
	})
	if err := p.Process(ctx, "u1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	record, err := s.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rc, err := cas.Open(ctx, record.OutputDigest)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(out), "review,sentiment\n") {
		t.Fatalf("output header wrong: %q", out)
	}
}

func TestProgressReportAndClear(t *testing.T) {
	p := NewProgress()
	p.Report("u1", 3, 10)

	current, total, ok := p.Get("u1")
	if !ok || current != 3 || total != 10 {
		t.Fatalf("got %d/%d ok=%v", current, total, ok)
	}

	p.Clear("u1")
	if _, _, ok := p.Get("u1"); ok {
		t.Fatal("counters survived clear")
	}
}
