package models

import "time"

// Blob is an immutable stored content object referenced by records.
type Blob struct {
	Digest    string    `json:"digest"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
