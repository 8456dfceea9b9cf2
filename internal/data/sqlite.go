package data

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	apperrors "mirrordl/internal/errors"
)

//go:embed schema.sql
var schema string

// SQLiteRepository persists run history in a SQLite database file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wires a SQLite-backed implementation of Repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db: db,
	}
}

// Open opens (creating if needed) the database at path and bootstraps the schema.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeError("data.Open", "failed to create history directory", err).WithField("path", dir)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storeError("data.Open", "failed to open history database", err).WithField("path", path)
	}
	db.SetMaxOpenConns(1)

	repo := NewSQLiteRepository(db)
	if err := repo.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Bootstrap creates the schema and prepares the store for use.
func (r *SQLiteRepository) Bootstrap(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := r.db.ExecContext(ctx, pragma); err != nil {
			return storeError("data.Bootstrap", "failed to configure history database", err)
		}
	}

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return storeError("data.Bootstrap", "failed to create history schema", err)
	}
	return nil
}

// RecordRun inserts or replaces a run row.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return storeError("data.RecordRun", "run id must not be empty", nil)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, root, source, variant, total, succeeded,
			already_valid, downloaded, failed, skipped, bytes, interrupted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = excluded.finished_at,
			total = excluded.total,
			succeeded = excluded.succeeded,
			already_valid = excluded.already_valid,
			downloaded = excluded.downloaded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			bytes = excluded.bytes,
			interrupted = excluded.interrupted`,
		run.ID,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Root,
		run.Source,
		run.Variant,
		run.Total,
		run.Succeeded,
		run.AlreadyValid,
		run.Downloaded,
		run.Failed,
		run.Skipped,
		int64(run.Bytes),
		run.Interrupted,
	)
	if err != nil {
		return storeError("data.RecordRun", "failed to record run", err).WithField("run_id", run.ID)
	}
	return nil
}

// RecordEntries stores all entry outcomes of a run in one transaction.
func (r *SQLiteRepository) RecordEntries(ctx context.Context, runID string, entries []EntryRecord) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("data.RecordEntries", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entries (run_id, path, outcome, reason, mirror, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeError("data.RecordEntries", "failed to prepare entry insert", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, runID, entry.Path, entry.Outcome, entry.Reason, entry.Mirror, entry.Duration.Milliseconds()); err != nil {
			return storeError("data.RecordEntries", "failed to record entry", err).
				WithField("run_id", runID).
				WithField("path", entry.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("data.RecordEntries", "failed to commit entries", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, root, source, variant, total, succeeded,
	already_valid, downloaded, failed, skipped, bytes, interrupted`

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, storeError("data.RecentRuns", "failed to query runs", err)
	}
	return scanRuns(rows, "data.RecentRuns")
}

// FindRun resolves a full or abbreviated run id, as printed by the history table.
func (r *SQLiteRepository) FindRun(ctx context.Context, idPrefix string) (Run, error) {
	idPrefix = strings.TrimSpace(idPrefix)
	if idPrefix == "" {
		return Run{}, notFound("run id must not be empty", idPrefix)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE substr(id, 1, ?) = ?
		ORDER BY started_at DESC
		LIMIT 2`, len(idPrefix), idPrefix)
	if err != nil {
		return Run{}, storeError("data.FindRun", "failed to query runs", err)
	}
	runs, err := scanRuns(rows, "data.FindRun")
	if err != nil {
		return Run{}, err
	}

	switch len(runs) {
	case 0:
		return Run{}, notFound("no recorded run matches", idPrefix)
	case 1:
		return runs[0], nil
	default:
		return Run{}, notFound("run id prefix is ambiguous", idPrefix)
	}
}

func scanRuns(rows *sql.Rows, operation string) ([]Run, error) {
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run            Run
			started, ended int64
			bytes          int64
		)
		if err := rows.Scan(&run.ID, &started, &ended, &run.Root, &run.Source, &run.Variant, &run.Total,
			&run.Succeeded, &run.AlreadyValid, &run.Downloaded, &run.Failed, &run.Skipped, &bytes, &run.Interrupted); err != nil {
			return nil, storeError(operation, "failed to scan run", err)
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(ended)
		run.Bytes = uint64(bytes)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(operation, "failed to iterate runs", err)
	}
	return runs, nil
}

// RunEntries returns the entry outcomes recorded for runID, ordered by path.
func (r *SQLiteRepository) RunEntries(ctx context.Context, runID string) ([]EntryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, path, outcome, reason, mirror, duration_ms
		FROM entries
		WHERE run_id = ?
		ORDER BY path`, runID)
	if err != nil {
		return nil, storeError("data.RunEntries", "failed to query entries", err)
	}
	defer rows.Close()

	var entries []EntryRecord
	for rows.Next() {
		var (
			entry      EntryRecord
			durationMS int64
		)
		if err := rows.Scan(&entry.RunID, &entry.Path, &entry.Outcome, &entry.Reason, &entry.Mirror, &durationMS); err != nil {
			return nil, storeError("data.RunEntries", "failed to scan entry", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("data.RunEntries", "failed to iterate entries", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close history database")
	}
	return nil
}

func storeError(operation, message string, err error) *apperrors.AppError {
	return apperrors.DatabaseError(apperrors.CodeHistoryStore, message, err).
		WithModule("data").
		WithOperation(operation)
}

func notFound(message, idPrefix string) *apperrors.AppError {
	return apperrors.DatabaseError(apperrors.CodeRunNotFound, message, nil).
		WithModule("data").
		WithOperation("data.FindRun").
		WithField("run_id", idPrefix)
}

var _ Repository = (*SQLiteRepository)(nil)
