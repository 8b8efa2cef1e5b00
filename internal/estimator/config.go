// Package estimator trains, evaluates and serves a binary text classifier
// over a pluggable embedding. Models live in a directory holding
// checkpoint.json, model.bin and eval_<split>/metrics.json.
package estimator

import (
	"errors"
	"slices"
)

// Defaults for a new classifier.
var DefaultHiddenUnits = []int{500, 100}

const (
	DefaultLearningRate = 0.003
	DefaultBatchSize    = 128
	DefaultLogEvery     = 100
)

var (
	// ErrExport is returned when the model artifact cannot be exported.
	ErrExport = errors.New("export failed")
	// ErrCheckpoint is returned for unreadable or incompatible checkpoints.
	ErrCheckpoint = errors.New("invalid checkpoint")
)

// Config is the architecture and training setup of a classifier.
type Config struct {
	// ModuleSpec identifies the embedding the model was trained on.
	ModuleSpec   string
	HiddenUnits  []int
	Optimizer    string
	LearningRate float64
	BatchSize    int
	Seed         int64
	// LogEvery logs training loss every N steps; 0 disables.
	LogEvery int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HiddenUnits:  slices.Clone(DefaultHiddenUnits),
		Optimizer:    OptimizerAdagrad,
		LearningRate: DefaultLearningRate,
		BatchSize:    DefaultBatchSize,
		LogEvery:     DefaultLogEvery,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.HiddenUnits) == 0 {
		c.HiddenUnits = d.HiddenUnits
	}
	if c.Optimizer == "" {
		c.Optimizer = d.Optimizer
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LogEvery < 0 {
		c.LogEvery = 0
	}
	return c
}
