package models

import "time"

// RunStatus is the lifecycle state of a recorded pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// Run is a persisted record of one training/evaluation run.
type Run struct {
	ID                string                 `json:"id"`
	Source            string                 `json:"source"`
	SourceFingerprint string                 `json:"source_fingerprint"`
	ModelDir          string                 `json:"model_dir"`
	Params            map[string]interface{} `json:"params"`
	Status            RunStatus              `json:"status"`
	Error             string                 `json:"error,omitempty"`
	Evaluation        EvaluationResult       `json:"evaluation,omitempty"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        *time.Time             `json:"finished_at,omitempty"`
}
