// Package storage persists per-task semantic indexes in SQLite. Each task
// owns one index row and a set of append-only entries carrying a file digest
// and its embedding vector. Two driver builds exist: a cgo build with the
// sqlite-vec extension for SQL-side similarity, and a pure Go build that
// ranks vectors in process.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrIndexSealed is returned on writes to a sealed index
	ErrIndexSealed = errors.New("index is sealed")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is the per-task embedding space. Provider, Model and Dimension are
// fixed at creation; retrieval refuses query vectors from any other space.
// Sealed flips once, after the last entry is written.
type Index struct {
	TaskID    string
	Provider  string
	Model     string
	Dimension int
	Sealed    bool
	CreatedAt time.Time
}

// Entry is one indexed file digest with its embedding vector.
type Entry struct {
	ID        int64
	TaskID    string
	Path      string
	Language  string
	Symbols   []string
	Imports   []string
	Summary   string
	Preview   string
	LineCount int
	Truncated bool
	Vector    []float32
}

// VectorResult is one ranked retrieval hit.
type VectorResult struct {
	Path       string
	Language   string
	Summary    string
	Preview    string
	Similarity float64
}

// Store persists and queries per-task indexes.
type Store interface {
	// CreateIndex registers a new unsealed index for a task.
	CreateIndex(ctx context.Context, idx *Index) error

	// GetIndex returns the index metadata for a task.
	GetIndex(ctx context.Context, taskID string) (*Index, error)

	// AppendEntry adds one entry to an unsealed index.
	AppendEntry(ctx context.Context, entry *Entry) error

	// SealIndex marks the index complete; later appends fail.
	SealIndex(ctx context.Context, taskID string) error

	// CountEntries returns the number of entries in a task's index.
	CountEntries(ctx context.Context, taskID string) (int, error)

	// ListEntries returns all entries for a task ordered by path.
	ListEntries(ctx context.Context, taskID string) ([]*Entry, error)

	// GetEntryByPath returns the entry for one file.
	GetEntryByPath(ctx context.Context, taskID, path string) (*Entry, error)

	// SearchVector ranks entries by cosine similarity to the query vector.
	// Ties break on ascending path so results are deterministic.
	SearchVector(ctx context.Context, taskID string, query []float32, limit int) ([]VectorResult, error)

	// DeleteIndex removes a task's index and all entries.
	DeleteIndex(ctx context.Context, taskID string) error

	// Close releases the database handle.
	Close() error
}
