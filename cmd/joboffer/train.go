package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperjump/joboffer/internal/cli"
	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/fingerprint"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// trainResult is a trained and evaluated pipeline. The caller owns Pipeline.
type trainResult struct {
	Pipeline    *pipeline.Pipeline
	RunID       string
	Fingerprint string
	Training    []models.TrainingOutcome
	Evaluation  models.EvaluationResult
}

// trainPipeline runs the whole pipeline on cfg.Data.Source into modelDir
// (a temporary directory when empty) and records the run when store is set.
func trainPipeline(ctx context.Context, cfg *config.Config, modelDir string, store storage.Storage, logger *zap.Logger) (_ *trainResult, err error) {
	if cfg.Data.Source == "" {
		return nil, errors.New("no data source: set data.source in the config or pass --source")
	}
	res := &trainResult{}
	var p *pipeline.Pipeline
	if fp, fpErr := fingerprint.File(cfg.Data.Source); fpErr == nil {
		res.Fingerprint = fp
	}

	if store != nil {
		run := &models.Run{
			Source:            cfg.Data.Source,
			SourceFingerprint: res.Fingerprint,
			ModelDir:          modelDir,
			Params:            runParams(cfg),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		res.RunID = run.ID
		defer func() {
			// The run outcome is recorded even when ctx was cancelled.
			recordCtx := context.WithoutCancel(ctx)
			var recErr error
			if p != nil && p.ModelDir() != "" && p.ModelDir() != run.ModelDir {
				recErr = store.SetRunModelDir(recordCtx, run.ID, p.ModelDir())
			}
			if recErr != nil {
				logger.Warn("failed to record model dir", zap.String("run_id", run.ID), zap.Error(recErr))
			}
			if err != nil {
				recErr = store.FailRun(recordCtx, run.ID, err)
			} else {
				recErr = store.FinishRun(recordCtx, run.ID, res.Evaluation)
			}
			if recErr != nil {
				logger.Warn("failed to record run outcome", zap.String("run_id", run.ID), zap.Error(recErr))
			}
		}()
	}

	// A directory that exists before the pipeline starts is kept on Close.
	if modelDir != "" {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return nil, fmt.Errorf("create model dir: %w", err)
		}
	}
	opts := pipelineOptions(cfg)
	opts.ModelDir = modelDir
	opts.Source = cfg.Data.Source
	p, err = pipeline.New(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	if err = p.Adapt(); err != nil {
		return nil, err
	}
	if err = p.PrepareModel(ctx, ""); err != nil {
		return nil, err
	}
	if res.Training, err = p.TrainModel(ctx, 0); err != nil {
		return nil, err
	}
	if res.Evaluation, err = p.EvaluateModel(ctx); err != nil {
		return nil, err
	}
	res.Pipeline = p
	logger.Info("pipeline evaluated", zap.String("run_id", res.RunID), zap.String("model_dir", p.ModelDir()))
	return res, nil
}

func runParams(cfg *config.Config) map[string]interface{} {
	params := map[string]interface{}{
		"frac":          cfg.Data.Frac,
		"hidden_units":  cfg.Model.HiddenUnits,
		"optimizer":     cfg.Model.Optimizer,
		"learning_rate": cfg.Model.LearningRate,
		"batch_size":    cfg.Model.BatchSize,
		"train_steps":   cfg.Model.TrainSteps,
		"module_spec":   cfg.Embedding.ModuleSpec,
	}
	if cfg.Data.Seed != nil {
		params["seed"] = *cfg.Data.Seed
	}
	return params
}

type trainReport struct {
	RunID      string                    `json:"run_id,omitempty"`
	ModelDir   string                    `json:"model_dir"`
	ExportDir  string                    `json:"export_dir,omitempty"`
	Training   []models.TrainingOutcome  `json:"training"`
	Evaluation models.EvaluationResult   `json:"evaluation"`
	Confusion  []*pipeline.ConfusionView `json:"confusion,omitempty"`
}

func newTrainCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Load, split, train and evaluate the classifier",
		Long: `Train loads the labeled table (payload, sentiment), splits it per class,
trains the classifier and evaluates it on every split. Without --model-dir the
model lives in a temporary directory that is removed on exit; use --export to keep it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, e)
		},
	}
	f := cmd.Flags()
	f.StringP("source", "s", "", "labeled CSV, TSV or XLSX file")
	f.Float64("frac", pipeline.DefaultFrac, "fraction of each class used for training")
	f.Int64("seed", 0, "seed for the split and weight initialization")
	f.String("model-dir", "", "model directory; an existing model is reopened and trained further")
	f.Int("steps", pipeline.DefaultTrainSteps, "training steps")
	f.String("optimizer", "", "optimizer: adagrad or sgd")
	f.Float64("learning-rate", 0, "learning rate")
	f.IntSlice("hidden-units", nil, "hidden layer sizes, e.g. 500,100")
	f.String("module-spec", "", "embedding module: hash://name, onnx://path or gemini://model")
	f.String("db", "", "run registry database path")
	f.String("export", "", "copy the trained model to this directory")
	f.Bool("confusion", false, "print a confusion matrix for every split")
	f.Bool("no-record", false, "do not record the run in the registry")
	return cmd
}

func runTrain(cmd *cobra.Command, e *env) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	format, err := e.format()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Storage
	if noRecord, _ := cmd.Flags().GetBool("no-record"); !noRecord {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	exportDir, _ := cmd.Flags().GetString("export")
	if cfg.Model.Dir == "" && exportDir == "" {
		logger.Warn("no --model-dir or --export given; the trained model will be discarded")
	}

	res, err := trainPipeline(ctx, cfg, cfg.Model.Dir, store, logger)
	if err != nil {
		return err
	}
	defer res.Pipeline.Close()

	report := trainReport{
		RunID:      res.RunID,
		ModelDir:   res.Pipeline.ModelDir(),
		Training:   res.Training,
		Evaluation: res.Evaluation,
	}
	if exportDir != "" {
		if err := res.Pipeline.ExportModel(ctx, exportDir); err != nil {
			return err
		}
		report.ExportDir = exportDir
		logger.Info("model exported", zap.String("dir", exportDir))
	}
	if withConfusion, _ := cmd.Flags().GetBool("confusion"); withConfusion {
		for _, name := range res.Pipeline.Splits().Names() {
			view, err := res.Pipeline.ConfusionMatrix(ctx, name)
			if err != nil {
				return err
			}
			report.Confusion = append(report.Confusion, view)
		}
	}
	return writeTrainReport(cmd, report, format)
}

func writeTrainReport(cmd *cobra.Command, report trainReport, format cli.OutputFormat) error {
	out := cmd.OutOrStdout()
	if format == cli.OutputJSON {
		return cli.WriteJSON(out, report)
	}
	if err := cli.WriteTraining(out, report.Training, format); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := cli.WriteEvaluation(out, report.Evaluation, format); err != nil {
		return err
	}
	for _, view := range report.Confusion {
		if err := cli.WriteConfusion(out, view, format); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)
	if report.RunID != "" {
		fmt.Fprintf(out, "Run:       %s\n", report.RunID)
	}
	fmt.Fprintf(out, "Model dir: %s\n", report.ModelDir)
	if report.ExportDir != "" {
		fmt.Fprintf(out, "Exported:  %s\n", report.ExportDir)
	}
	return nil
}
