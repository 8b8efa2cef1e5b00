package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/joboffer/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

var runColumns = []string{
	"id", "source", "source_fingerprint", "model_dir", "params",
	"status", "error", "started_at", "finished_at",
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		source_fingerprint TEXT NOT NULL DEFAULT '',
		model_dir TEXT NOT NULL DEFAULT '',
		params TEXT,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_source_status ON runs(source, status);

	CREATE TABLE IF NOT EXISTS evaluations (
		run_id TEXT NOT NULL,
		split TEXT NOT NULL,
		metrics TEXT NOT NULL,
		PRIMARY KEY (run_id, split),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStorage) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.ExecContext(ctx, query, args...)
}

// CreateRun inserts a run.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.RunStatusRunning
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	_, err = s.exec(ctx, sq.Insert("runs").
		Columns(runColumns...).
		Values(run.ID, run.Source, run.SourceFingerprint, run.ModelDir, string(params),
			string(run.Status), "", run.StartedAt, nil))
	return err
}

func (s *SQLiteStorage) finish(ctx context.Context, id string, status models.RunStatus, cause string) error {
	result, err := s.exec(ctx, sq.Update("runs").
		Set("status", string(status)).
		Set("error", cause).
		Set("finished_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

// FinishRun stores the evaluation and marks the run finished.
func (s *SQLiteStorage) FinishRun(ctx context.Context, id string, evaluation models.EvaluationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for split, met := range evaluation {
		data, err := json.Marshal(met)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}
		query, args, err := sq.Insert("evaluations").
			Columns("run_id", "split", "metrics").
			Values(id, split, string(data)).
			Suffix("ON CONFLICT(run_id, split) DO UPDATE SET metrics = excluded.metrics").
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.finish(ctx, id, models.RunStatusFinished, "")
}

// SetRunModelDir updates the model directory of a run.
func (s *SQLiteStorage) SetRunModelDir(ctx context.Context, id, dir string) error {
	result, err := s.exec(ctx, sq.Update("runs").Set("model_dir", dir).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

// FailRun marks the run failed.
func (s *SQLiteStorage) FailRun(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, id, models.RunStatusFailed, msg)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run      models.Run
		params   sql.NullString
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Source, &run.SourceFingerprint, &run.ModelDir, &params,
		&status, &run.Error, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	return &run, nil
}

func (s *SQLiteStorage) loadEvaluation(ctx context.Context, run *models.Run) error {
	query, args, err := sq.Select("split", "metrics").From("evaluations").
		Where(sq.Eq{"run_id": run.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var split, data string
		if err := rows.Scan(&split, &data); err != nil {
			return err
		}
		var met models.Metrics
		if err := json.Unmarshal([]byte(data), &met); err != nil {
			return fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		if run.Evaluation == nil {
			run.Evaluation = models.EvaluationResult{}
		}
		run.Evaluation[split] = &met
	}
	return rows.Err()
}

func (s *SQLiteStorage) getOne(ctx context.Context, b sq.SelectBuilder, what string) (*models.Run, error) {
	query, args, err := b.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadEvaluation(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun returns a run with its evaluation.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.getOne(ctx, sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}), "run "+id)
}

// LatestFinished returns the newest finished run for source.
func (s *SQLiteStorage) LatestFinished(ctx context.Context, source string) (*models.Run, error) {
	return s.getOne(ctx, sq.Select(runColumns...).From("runs").
		Where(sq.Eq{"source": source, "status": string(models.RunStatusFinished)}).
		OrderBy("started_at DESC"), "finished run for "+source)
}

// ListRuns returns runs with offset and limit, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, offset, limit int) ([]*models.Run, error) {
	query, args, err := sq.Select(runColumns...).From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(max(limit, 0))).
		Offset(uint64(max(offset, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	for _, run := range runs {
		if err := s.loadEvaluation(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRun removes a run and its evaluation.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, sq.Delete("evaluations").Where(sq.Eq{"run_id": id})); err != nil {
		return err
	}
	_, err := s.exec(ctx, sq.Delete("runs").Where(sq.Eq{"id": id}))
	return err
}

// CountRuns returns the number of runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From("runs").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
