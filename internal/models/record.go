package models

import (
	"fmt"
	"strings"
	"time"
)

// RecordState is the processing lifecycle state of one upload record.
type RecordState string

const (
	StatePending        RecordState = "pending"
	StateProcessing     RecordState = "processing"
	StatePostProcessing RecordState = "postprocessing"
	StateSuccess        RecordState = "success"
	StateFailed         RecordState = "failed"
)

// legalTransitions maps each state to the states it may move to.
// Success and Failed are terminal.
var legalTransitions = map[RecordState][]RecordState{
	StatePending:        {StateProcessing},
	StateProcessing:     {StatePostProcessing, StateFailed},
	StatePostProcessing: {StateSuccess, StateFailed},
	StateSuccess:        {},
	StateFailed:         {},
}

// ParseRecordState validates a raw state value.
func ParseRecordState(raw string) (RecordState, error) {
	value := RecordState(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := legalTransitions[value]; !ok {
		return "", fmt.Errorf("invalid record state: %q", raw)
	}
	return value, nil
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to RecordState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a state admits no further transitions.
func (s RecordState) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Record is one logical upload request. Many records may share a content
// digest; a record with a non-empty CanonicalID is a duplicate redirect and
// never processes independently.
type Record struct {
	LogicalID    string      `json:"logical_id"`
	Filename     string      `json:"filename"`
	Digest       string      `json:"digest"`
	SizeBytes    int64       `json:"size_bytes"`
	State        RecordState `json:"state"`
	CanonicalID  string      `json:"canonical_id,omitempty"`
	OutputDigest string      `json:"output_digest,omitempty"`
	OutputSize   int64       `json:"output_size,omitempty"`
	FailureCause string      `json:"failure_cause,omitempty"`
	UploadedAt   time.Time   `json:"uploaded_at"`
}

// IsDuplicate reports whether the record redirects to a canonical record.
func (r *Record) IsDuplicate() bool {
	return r != nil && r.CanonicalID != ""
}
