// Package pipeline consumes registered records: it streams the uploaded CSV
// through a classifier and publishes the labeled CSV back into the content
// store, driving the record lifecycle as it goes.
package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"sentiq/internal/blobstore"
	"sentiq/internal/classify"
	"sentiq/internal/models"
	"sentiq/internal/store"
)

const (
	DefaultCommentColumn = "comment"
	DefaultLabelColumn   = "label"
)

// Pipeline processes one record per Process call. State transitions are
// short registry transactions; the classifier is always called between
// them, never inside.
type Pipeline struct {
	registry   store.RecordRegistry
	blobs      blobstore.BlobStore
	classifier classify.Classifier
	themes     *classify.ThemeMapping
	progress   *Progress
	logger     *slog.Logger

	commentColumn string
	labelColumn   string
}

// Options tunes optional pipeline behavior.
type Options struct {
	// CommentColumn is the input column holding the text to classify.
	CommentColumn string
	// LabelColumn is the output column appended to each row.
	LabelColumn string
	// Themes, when set, maps numeric classifier labels to theme names.
	Themes *classify.ThemeMapping
}

// New creates a pipeline.
func New(registry store.RecordRegistry, blobs blobstore.BlobStore, classifier classify.Classifier, progress *Progress, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = NewProgress()
	}
	commentColumn := strings.TrimSpace(opts.CommentColumn)
	if commentColumn == "" {
		commentColumn = DefaultCommentColumn
	}
	labelColumn := strings.TrimSpace(opts.LabelColumn)
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}
	return &Pipeline{
		registry:      registry,
		blobs:         blobs,
		classifier:    classifier,
		themes:        opts.Themes,
		progress:      progress,
		logger:        logger,
		commentColumn: commentColumn,
		labelColumn:   labelColumn,
	}
}

// Progress exposes the tracker for status queries.
func (p *Pipeline) Progress() *Progress {
	return p.progress
}

// Process runs one record from Pending to a terminal state. Unrecoverable
// errors are recorded as the record's failure cause; the returned error is
// for the caller's logs, not for retries.
func (p *Pipeline) Process(ctx context.Context, logicalID string) error {
	record, err := p.registry.GetRecord(ctx, logicalID)
	if err != nil {
		return err
	}
	if record.IsDuplicate() {
		return fmt.Errorf("record %s redirects to %s and must not be processed", logicalID, record.CanonicalID)
	}

	// Pending -> Processing is never skipped, even for empty inputs:
	// callers must be able to observe that work started.
	if err := p.registry.SetState(ctx, logicalID, models.StateProcessing); err != nil {
		return err
	}
	defer p.progress.Clear(logicalID)

	header, rows, err := p.readInput(ctx, record)
	if err != nil {
		return p.fail(ctx, logicalID, err)
	}

	commentIdx := columnIndex(header, p.commentColumn)
	if commentIdx < 0 {
		return p.fail(ctx, logicalID, fmt.Errorf("input is missing a %q column", p.commentColumn))
	}

	total := len(rows)
	p.progress.Report(logicalID, 0, total)

	labels := make([]string, total)
	for i, row := range rows {
		text := ""
		if commentIdx < len(row) {
			text = row[commentIdx]
		}
		label, err := p.classifier.Classify(ctx, text)
		if err != nil {
			return p.fail(ctx, logicalID, fmt.Errorf("row %d: %w", i+1, err))
		}
		labels[i] = p.themes.ResolveLabel(label)
		p.progress.Report(logicalID, i+1, total)
	}

	if err := p.registry.SetState(ctx, logicalID, models.StatePostProcessing); err != nil {
		return err
	}

	outputDigest, outputSize, err := p.writeOutput(ctx, header, rows, labels)
	if err != nil {
		return p.fail(ctx, logicalID, err)
	}

	if err := p.registry.CompleteSuccess(ctx, logicalID, outputDigest, outputSize); err != nil {
		return err
	}

	p.logger.Info("record processed",
		"logical_id", logicalID,
		"rows", total,
		"output_digest", outputDigest,
	)
	return nil
}

func (p *Pipeline) readInput(ctx context.Context, record *models.Record) ([]string, [][]string, error) {
	rc, err := p.blobs.Open(ctx, record.Digest)
	if err != nil {
		return nil, nil, fmt.Errorf("open content %s: %w", record.Digest, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("input is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse input: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse input row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func (p *Pipeline) writeOutput(ctx context.Context, header []string, rows [][]string, labels []string) (string, int64, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(append(append([]string{}, header...), p.labelColumn)); err != nil {
		return "", 0, fmt.Errorf("write output header: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(append(append([]string{}, row...), labels[i])); err != nil {
			return "", 0, fmt.Errorf("write output row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", 0, fmt.Errorf("flush output: %w", err)
	}

	// Outputs share the content store: identical inputs yield identical
	// outputs, so the claim race dedupes them for free.
	digest, size, err := p.blobs.Put(ctx, &buf)
	if err != nil {
		return "", 0, fmt.Errorf("store output: %w", err)
	}
	return digest, size, nil
}

func (p *Pipeline) fail(ctx context.Context, logicalID string, cause error) error {
	if err := p.registry.CompleteFailure(ctx, logicalID, cause); err != nil {
		p.logger.Error("record failure not recorded", "logical_id", logicalID, "error", err)
	}
	p.logger.Warn("record failed", "logical_id", logicalID, "error", cause)
	return cause
}

func columnIndex(header []string, name string) int {
	for i, column := range header {
		if strings.EqualFold(strings.TrimSpace(column), name) {
			return i
		}
	}
	return -1
}
