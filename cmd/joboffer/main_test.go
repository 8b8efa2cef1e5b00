package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/joboffer/internal/cli"
	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/storage"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "data:\n  source: ./offers.csv\nmodel:\n  train_steps: 42\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, loaded, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != path {
		t.Errorf("loaded path = %q, want %q", loaded, path)
	}
	if cfg.Data.Source != filepath.Join(dir, "offers.csv") {
		t.Errorf("source = %q", cfg.Data.Source)
	}
	if cfg.Model.TrainSteps != 42 || cfg.Data.Frac != 0.60 {
		t.Errorf("steps = %d frac = %v", cfg.Model.TrainSteps, cfg.Data.Frac)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing config")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(*config.Config) error
		wantErr bool
	}{
		{
			name: "overrides",
			args: []string{"--source", "offers.tsv", "--seed", "7", "--hidden-units", "8,4", "--steps", "10", "--optimizer", "sgd"},
			check: func(c *config.Config) error {
				if c.Data.Source != "offers.tsv" || c.Model.TrainSteps != 10 || c.Model.Optimizer != "sgd" {
					return fmt.Errorf("got %+v %+v", c.Data, c.Model)
				}
				if c.Data.Seed == nil || *c.Data.Seed != 7 || c.Model.Seed != 7 {
					return fmt.Errorf("seed not applied")
				}
				if !reflect.DeepEqual(c.Model.HiddenUnits, []int{8, 4}) {
					return fmt.Errorf("hidden units = %v", c.Model.HiddenUnits)
				}
				return nil
			},
		},
		{
			name: "unset flags keep config",
			args: nil,
			check: func(c *config.Config) error {
				if c.Data.Seed != nil || c.Model.TrainSteps != 5000 {
					return fmt.Errorf("got seed=%v steps=%d", c.Data.Seed, c.Model.TrainSteps)
				}
				return nil
			},
		},
		{name: "frac out of range", args: []string{"--frac", "1"}, wantErr: true},
		{name: "zero steps", args: []string{"--steps", "0"}, wantErr: true},
		{name: "unknown optimizer", args: []string{"--optimizer", "adam"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTrainCmd(&env{v: viper.New()})
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			cfg := config.Default()
			err := applyFlags(cmd.Flags(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyFlags err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				if err := tt.check(cfg); err != nil {
					t.Error(err)
				}
			}
		})
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Dir = "/tmp/model"
	opts := pipelineOptions(cfg)
	if opts.Source != "" {
		t.Errorf("source should be left to the caller, got %q", opts.Source)
	}
	if opts.ModelDir != "/tmp/model" || opts.Frac != 0.60 || opts.TrainSteps != 5000 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Estimator.ModuleSpec != opts.Embedding.ModuleSpec {
		t.Errorf("module specs differ: %q vs %q", opts.Estimator.ModuleSpec, opts.Embedding.ModuleSpec)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "joboffer version: dev") {
		t.Errorf("got %q", out)
	}
}

func writeOffers(t *testing.T, path string) {
	t.Helper()
	pos := []string{"great salary and remote work", "friendly team with bonus", "flexible hours and training"}
	neg := []string{"unpaid overtime every week", "toxic boss and low pay", "no contract and night shifts"}
	var b strings.Builder
	b.WriteString("payload,sentiment\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%s,positive\n", pos[i%len(pos)])
		fmt.Fprintf(&b, "%s,negative\n", neg[i%len(neg)])
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestTrainClassifyAndRuns(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "offers.csv")
	writeOffers(t, source)
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("storage:\n  database_path: ./runs.db\n"), 0600); err != nil {
		t.Fatal(err)
	}
	modelDir := filepath.Join(dir, "model")

	out, err := execute(t, "train", "--config", cfgPath, "-o", "json",
		"--source", source, "--model-dir", modelDir, "--steps", "20", "--seed", "1",
		"--hidden-units", "8", "--module-spec", "hash://offers-dim16", "--confusion")
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	var report trainReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("train output is not JSON: %v\n%s", err, out)
	}
	if report.RunID == "" || report.ModelDir != modelDir {
		t.Errorf("report = %+v", report)
	}
	if report.Evaluation[models.SplitTrain] == nil || report.Evaluation[models.SplitTest] == nil {
		t.Fatalf("evaluation = %+v", report.Evaluation)
	}
	if got := report.Evaluation[models.SplitTest].Examples; got != 8 {
		t.Errorf("test examples = %d, want 8", got)
	}
	if len(report.Confusion) != 2 {
		t.Errorf("confusion views = %d, want 2", len(report.Confusion))
	}

	// The model directory survives the command and is reopened with its own settings.
	out, err = execute(t, "classify", "--config", cfgPath, "-o", "json",
		"--model-dir", modelDir, "great salary and remote work")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var results []cli.ClassifiedDocument
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("classify output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 1 || (results[0].Label != "positive" && results[0].Label != "negative") {
		t.Errorf("results = %+v", results)
	}

	out, err = execute(t, "runs", "list", "--config", cfgPath, "-o", "json")
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	var runs []models.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("runs output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].ID != report.RunID || runs[0].Status != models.RunStatusFinished {
		t.Errorf("runs = %+v", runs)
	}

	exportDir := filepath.Join(dir, "exported")
	if _, err := execute(t, "export", "--config", cfgPath, "--model-dir", modelDir, exportDir); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportDir, "checkpoint.json")); err != nil {
		t.Errorf("exported checkpoint missing: %v", err)
	}
}

func TestTrainPipeline_RecordsTemporaryModelDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Source = filepath.Join(dir, "offers.csv")
	writeOffers(t, cfg.Data.Source)
	cfg.Embedding.ModuleSpec = "hash://offers-dim16"
	cfg.Model.HiddenUnits = []int{8}
	cfg.Model.TrainSteps = 5

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	res, err := trainPipeline(ctx, cfg, "", store, zap.NewNop())
	if err != nil {
		t.Fatalf("trainPipeline: %v", err)
	}
	defer res.Pipeline.Close()

	run, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.ModelDir == "" || run.ModelDir != res.Pipeline.ModelDir() {
		t.Errorf("recorded model dir = %q, pipeline used %q", run.ModelDir, res.Pipeline.ModelDir())
	}
	if run.Status != models.RunStatusFinished {
		t.Errorf("status = %s", run.Status)
	}
}

func TestClassify_errors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("storage:\n  database_path: ./runs.db\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "classify", "--config", cfgPath, "--model-dir", dir); err == nil {
		t.Error("expected error with nothing to classify")
	}
	if _, err := execute(t, "classify", "--config", cfgPath, "--model-dir", dir, "some offer"); err == nil {
		t.Error("expected error for directory without a model")
	}
	if _, err := execute(t, "train", "--config", cfgPath, "--no-record"); err == nil {
		t.Error("expected error without a data source")
	}
}
