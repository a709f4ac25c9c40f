package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunRepository handles run ledger operations.
type RunRepository struct {
	db DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts an open run.
func (r *RunRepository) StartRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO runs (id, input_root, output_root, backend, workers, total, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(), run.InputRoot, run.OutputRoot, run.Backend, run.Workers, run.Total, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordDocument stores the outcome of one document in the given run.
func (r *RunRepository) RecordDocument(ctx context.Context, runID uuid.UUID, res domain.DocumentResult) error {
	rec := DocumentRecord{
		ID:         uuid.New(),
		RunID:      runID,
		InputPath:  res.Item.InputPath,
		OutputPath: res.Item.OutputPath,
		Pages:      res.Pages,
		Status:     DocumentStatusSucceeded,
		DurationMS: res.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if res.Err != nil {
		rec.Status = DocumentStatusFailed
		rec.Error = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	query := `
		INSERT INTO run_documents (id, run_id, input_path, output_path, pages, status, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID.String(), rec.RunID.String(), rec.InputPath, rec.OutputPath, rec.Pages,
		string(rec.Status), rec.Error, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", rec.InputPath, err)
	}
	return nil
}

// FinishRun closes a run with the totals from its report.
func (r *RunRepository) FinishRun(ctx context.Context, runID uuid.UUID, report *domain.BatchReport) error {
	query := `
		UPDATE runs
		SET total = $1, succeeded = $2, failed = $3, pages = $4, finished_at = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		report.Total, len(report.Succeeded), len(report.Failed), report.PagesProcessed(),
		time.Now().UTC(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, input_root, output_root, backend, workers, total, succeeded, failed, pages, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	err := s.Scan(
		&run.ID, &run.InputRoot, &run.OutputRoot, &run.Backend, &run.Workers,
		&run.Total, &run.Succeeded, &run.Failed, &run.Pages, &run.StartedAt, &run.FinishedAt,
	)
	return run, err
}

// GetRun retrieves a run by ID.
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListDocuments returns the documents of a run, optionally filtered by status.
func (r *RunRepository) ListDocuments(ctx context.Context, runID uuid.UUID, status DocumentStatus) ([]*DocumentRecord, error) {
	query := `
		SELECT id, run_id, input_path, output_path, pages, status, error, duration_ms, created_at
		FROM run_documents
		WHERE run_id = $1
	`
	args := []interface{}{runID.String()}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY input_path`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*DocumentRecord
	for rows.Next() {
		doc := &DocumentRecord{}
		var st string
		if err := rows.Scan(
			&doc.ID, &doc.RunID, &doc.InputPath, &doc.OutputPath, &doc.Pages,
			&st, &doc.Error, &doc.DurationMS, &doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		doc.Status = DocumentStatus(st)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListFailures returns the failed documents of a run.
func (r *RunRepository) ListFailures(ctx context.Context, runID uuid.UUID) ([]*DocumentRecord, error) {
	return r.ListDocuments(ctx, runID, DocumentStatusFailed)
}
