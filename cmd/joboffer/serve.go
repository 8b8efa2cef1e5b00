package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/estimator"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/internal/server"
	"github.com/hyperjump/joboffer/internal/storage"
	"github.com/hyperjump/joboffer/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// servedModel is a pipeline plus the evaluation it is served with. A model
// reopened for inference has no in-memory evaluation, so the metrics saved in
// its directory are used.
type servedModel struct {
	*pipeline.Pipeline
	evaluation models.EvaluationResult
}

func (m *servedModel) Evaluation() models.EvaluationResult {
	if eval := m.Pipeline.Evaluation(); eval != nil {
		return eval
	}
	return m.evaluation
}

// savedEvaluation reads the metrics last written to dir for the standard splits.
func savedEvaluation(dir string) models.EvaluationResult {
	var eval models.EvaluationResult
	for _, name := range []string{models.SplitTrain, models.SplitTest} {
		met, err := estimator.ReadMetrics(dir, name)
		if err != nil {
			continue
		}
		if eval == nil {
			eval = models.EvaluationResult{}
		}
		eval[name] = met
	}
	return eval
}

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classifier over HTTP",
		Long: `Serve exposes the classifier over HTTP. A trained model in --model-dir is
served as is; otherwise the data source is trained first. With --watch the data
source is retrained whenever its content changes and the new model replaces the
served one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, e)
		},
	}
	f := cmd.Flags()
	f.StringP("source", "s", "", "labeled CSV, TSV or XLSX file")
	f.String("model-dir", "", "directory of a trained model")
	f.String("module-spec", "", "embedding module")
	f.Int("steps", pipeline.DefaultTrainSteps, "training steps for (re)training")
	f.String("db", "", "run registry database path")
	f.String("host", "", "listen host")
	f.Int("port", 0, "listen port")
	f.Bool("watch", false, "retrain when the data source changes")
	return cmd
}

func runServe(cmd *cobra.Command, e *env) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.NewServer(nil, store, cfg, logger)
	var baseline string
	if cfg.Model.Dir != "" && estimator.HasCheckpoint(cfg.Model.Dir) {
		p, err := openModel(ctx, cfg, cmd.Flags().Changed("module-spec"), logger)
		if err != nil {
			return err
		}
		srv.SwapClassifier(&servedModel{Pipeline: p, evaluation: savedEvaluation(cfg.Model.Dir)})
	} else if cfg.Data.Source != "" {
		res, err := trainPipeline(ctx, cfg, cfg.Model.Dir, store, logger)
		if err != nil {
			return err
		}
		baseline = res.Fingerprint
		srv.SwapClassifier(&servedModel{Pipeline: res.Pipeline})
	} else {
		logger.Warn("no model and no data source; classify requests will fail until a model is loaded")
	}
	defer func() { closeClassifier(srv.SwapClassifier(nil), logger) }()

	if cfg.Server.Watch && cfg.Data.Source != "" {
		r := &retrainer{cfg: cfg, store: store, srv: srv, logger: logger}
		opts := []watcher.WatcherOption{watcher.WithLogger(logger)}
		if baseline != "" {
			opts = append(opts, watcher.WithFingerprint(baseline))
		}
		w, err := watcher.NewWatcher(cfg.Data.Source, func(_, _ string) { r.retrain(ctx) }, opts...)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		logger.Info("watching data source", zap.String("path", w.Path()))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// retrainer retrains the data source into a fresh model and swaps it in.
// Concurrent triggers are serialized.
type retrainer struct {
	mu     sync.Mutex
	cfg    *config.Config
	store  storage.Storage
	srv    *server.Server
	logger *zap.Logger
}

func (r *retrainer) retrain(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	r.logger.Info("retraining", zap.String("source", r.cfg.Data.Source))
	res, err := trainPipeline(ctx, r.cfg, "", r.store, r.logger)
	if err != nil {
		r.logger.Error("retrain failed; keeping the current model", zap.Error(err))
		return
	}
	closeClassifier(r.srv.SwapClassifier(&servedModel{Pipeline: res.Pipeline}), r.logger)
}

func closeClassifier(c server.Classifier, logger *zap.Logger) {
	closer, ok := c.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close model", zap.Error(err))
	}
}
