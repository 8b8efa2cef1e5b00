package config

import (
	"slices"

	"github.com/hyperjump/joboffer/internal/embedding"
	"github.com/hyperjump/joboffer/internal/estimator"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Data.Frac == 0 {
		cfg.Data.Frac = 0.60
	}
	if len(cfg.Model.HiddenUnits) == 0 {
		cfg.Model.HiddenUnits = slices.Clone(estimator.DefaultHiddenUnits)
	}
	if cfg.Model.Optimizer == "" {
		cfg.Model.Optimizer = estimator.OptimizerAdagrad
	}
	if cfg.Model.LearningRate == 0 {
		cfg.Model.LearningRate = estimator.DefaultLearningRate
	}
	if cfg.Model.BatchSize == 0 {
		cfg.Model.BatchSize = estimator.DefaultBatchSize
	}
	if cfg.Model.TrainSteps == 0 {
		cfg.Model.TrainSteps = 5000
	}
	if cfg.Model.LogEvery == 0 {
		cfg.Model.LogEvery = estimator.DefaultLogEvery
	}
	if cfg.Embedding.ModuleSpec == "" {
		cfg.Embedding.ModuleSpec = embedding.DefaultModuleSpec
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/joboffer/data/runs.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
}
