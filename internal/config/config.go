// Package config provides configuration loading and structs for the job-offer classifier.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/joboffer/internal/embedding"
	"github.com/hyperjump/joboffer/internal/estimator"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Data      DataConfig      `yaml:"data"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
}

// DataConfig selects the labeled table and how it is split.
type DataConfig struct {
	Source string  `yaml:"source"`
	Frac   float64 `yaml:"frac"`
	// Seed fixes the split; unset draws a random seed per run.
	Seed *int64 `yaml:"seed,omitempty"`
}

// ModelConfig holds classifier architecture and training settings.
type ModelConfig struct {
	// Dir is where the model is stored; empty uses a temporary directory.
	Dir          string  `yaml:"dir"`
	HiddenUnits  []int   `yaml:"hidden_units"`
	Optimizer    string  `yaml:"optimizer"`
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	TrainSteps   int     `yaml:"train_steps"`
	Seed         int64   `yaml:"seed"`
	LogEvery     int     `yaml:"log_every"`
}

// EmbeddingConfig selects the text embedding.
type EmbeddingConfig struct {
	// ModuleSpec is hash://<name>, onnx://<path>, a .onnx path, or gemini://<model>.
	ModuleSpec string `yaml:"module_spec"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// StorageConfig holds the run registry location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Watch retrains when the data source changes.
	Watch bool `yaml:"watch"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Data.Source != "" {
		cfg.Data.Source = expandPath(cfg.Data.Source, configDir)
	}
	if cfg.Model.Dir != "" {
		cfg.Model.Dir = expandPath(cfg.Model.Dir, configDir)
	}
	cfg.Embedding.ModuleSpec = expandModulePath(cfg.Embedding.ModuleSpec, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// expandModulePath expands the file path of onnx module specs.
func expandModulePath(spec, configDir string) string {
	if rest, ok := strings.CutPrefix(spec, "onnx://"); ok && rest != "" {
		return "onnx://" + expandPath(rest, configDir)
	}
	if !strings.Contains(spec, "://") && strings.HasSuffix(strings.ToLower(spec), ".onnx") {
		return expandPath(spec, configDir)
	}
	return spec
}

// EstimatorConfig converts the model section for the estimator.
func (c *Config) EstimatorConfig() estimator.Config {
	return estimator.Config{
		ModuleSpec:   c.Embedding.ModuleSpec,
		HiddenUnits:  slices.Clone(c.Model.HiddenUnits),
		Optimizer:    c.Model.Optimizer,
		LearningRate: c.Model.LearningRate,
		BatchSize:    c.Model.BatchSize,
		Seed:         c.Model.Seed,
		LogEvery:     c.Model.LogEvery,
	}
}

// EmbeddingOptions converts the embedding section for embedding.Open.
func (c *Config) EmbeddingOptions() embedding.Options {
	return embedding.Options{
		ModuleSpec: c.Embedding.ModuleSpec,
		Dimensions: c.Embedding.Dimensions,
		MaxTokens:  c.Embedding.MaxTokens,
		CacheSize:  c.Embedding.CacheSize,
		APIKey:     c.Embedding.APIKey,
	}
}
