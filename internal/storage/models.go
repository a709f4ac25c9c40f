// Package storage provides the run ledger: one row per batch run and one row
// per document processed in that run.
package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the outcome of one document.
type DocumentStatus string

const (
	DocumentStatusSucceeded DocumentStatus = "succeeded"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Run represents one invocation of the convert pipeline.
type Run struct {
	ID         uuid.UUID
	InputRoot  string
	OutputRoot string
	Backend    string
	Workers    int
	Total      int
	Succeeded  int
	Failed     int
	Pages      int
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Finished reports whether the run has been closed.
func (r *Run) Finished() bool {
	return r.FinishedAt.Valid
}

// DocumentRecord is the ledger entry for one processed document.
type DocumentRecord struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	InputPath  string
	OutputPath string
	Pages      int
	Status     DocumentStatus
	Error      sql.NullString
	DurationMS int64
	CreatedAt  time.Time
}
