package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/joboffer/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines persistence of pipeline runs and their evaluations.
type Storage interface {
	// CreateRun inserts run with status RUNNING, assigning ID and StartedAt when unset.
	CreateRun(ctx context.Context, run *models.Run) error
	// FinishRun marks the run FINISHED and stores its evaluation.
	FinishRun(ctx context.Context, id string, evaluation models.EvaluationResult) error
	// FailRun marks the run FAILED with the cause.
	FailRun(ctx context.Context, id string, cause error) error
	// SetRunModelDir records where the run's model ended up.
	SetRunModelDir(ctx context.Context, id, dir string) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, offset, limit int) ([]*models.Run, error)
	// LatestFinished returns the newest FINISHED run for source, or ErrNotFound.
	LatestFinished(ctx context.Context, source string) (*models.Run, error)
	DeleteRun(ctx context.Context, id string) error
	CountRuns(ctx context.Context) (int64, error)

	Close() error
}
