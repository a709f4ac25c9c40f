package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "mysql", "x", 0)
	assert.Error(t, err)

	_, err = Open(ctx, DriverSQLite, "", 0)
	assert.Error(t, err)

	_, err = Open(ctx, DriverPostgres, "", 0)
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db, DriverSQLite))
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	run := &Run{InputRoot: "in", OutputRoot: "out", Backend: "tesseract", Workers: 2, Total: 3}
	require.NoError(t, repo.StartRun(ctx, run))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.Finished())
	assert.Equal(t, "tesseract", got.Backend)

	report := &domain.BatchReport{Total: 3}
	results := []domain.DocumentResult{
		{Item: domain.WorkItem{InputPath: "in/a.pdf", OutputPath: "out/a.txt"}, Pages: 2, Duration: 1500 * time.Millisecond},
		{Item: domain.WorkItem{InputPath: "in/c.pdf", OutputPath: "out/c.txt"}, Pages: 1},
		{Item: domain.WorkItem{InputPath: "in/sub/b.pdf", OutputPath: "out/sub/b.txt"}, Err: errors.New("page 2: engine crashed")},
	}
	for _, res := range results {
		report.Add(res)
		require.NoError(t, repo.RecordDocument(ctx, run.ID, res))
	}
	require.NoError(t, repo.FinishRun(ctx, run.ID, report))

	got, err = repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 3, got.Pages)

	docs, err := repo.ListDocuments(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "in/a.pdf", docs[0].InputPath)
	assert.Equal(t, int64(1500), docs[0].DurationMS)
	assert.Equal(t, DocumentStatusSucceeded, docs[0].Status)

	failures, err := repo.ListFailures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "in/sub/b.pdf", failures[0].InputPath)
	assert.Equal(t, DocumentStatusFailed, failures[0].Status)
	assert.Equal(t, "page 2: engine crashed", failures[0].Error.String)
}

func TestRunRepository_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := &Run{InputRoot: "in", OutputRoot: "out", Backend: "vision", Workers: 1, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, repo.StartRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	_, err := repo.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.FinishRun(ctx, uuid.New(), &domain.BatchReport{})
	assert.ErrorIs(t, err, ErrNotFound)
}
