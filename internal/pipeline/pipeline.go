// Package pipeline sequences loading, splitting, training, evaluation and
// prediction of the job-offer classifier and owns the model directory.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hyperjump/joboffer/internal/dataset"
	"github.com/hyperjump/joboffer/internal/embedding"
	"github.com/hyperjump/joboffer/internal/estimator"
	"github.com/hyperjump/joboffer/internal/input"
	"github.com/hyperjump/joboffer/internal/metrics"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/split"
	"github.com/hyperjump/joboffer/internal/storage"
	"go.uber.org/zap"
)

// Defaults for Options.
const (
	DefaultFrac       = 0.60
	DefaultTrainSteps = 5000
)

// Options configures a Pipeline.
type Options struct {
	// Source is a labeled table; when empty the pipeline is inference-only.
	Source string
	Frac   float64
	// Seed fixes the split; nil draws a random one.
	Seed *int64
	// ModelDir holds the model. When empty a temporary directory is used.
	ModelDir   string
	TrainSteps int
	Estimator  estimator.Config
	Embedding  embedding.Options
}

// Pipeline implements load -> split -> adapt -> prepare -> train -> evaluate.
// It is not safe for concurrent use.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	phase      Phase
	data       models.Dataset
	splits     models.Split
	train      []input.Spec
	predict    map[string]input.Spec
	embedder   embedding.Embedder
	model      *estimator.Model
	evaluation models.EvaluationResult

	modelDir  string
	ownsDir   bool
	closeOnce sync.Once
}

// New creates a pipeline and, when opts.Source is set, loads and splits it.
// Close must be called to release the embedder and an owned model directory.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Frac == 0 {
		opts.Frac = DefaultFrac
	}
	if opts.TrainSteps == 0 {
		opts.TrainSteps = DefaultTrainSteps
	}
	if opts.Embedding.ModuleSpec == "" {
		opts.Embedding.ModuleSpec = embedding.DefaultModuleSpec
	}
	if opts.Estimator.ModuleSpec == "" {
		opts.Estimator.ModuleSpec = opts.Embedding.ModuleSpec
	}
	p := &Pipeline{opts: opts, logger: logger}
	p.setModelDir(opts.ModelDir)

	if opts.Source != "" {
		if err := p.Load(ctx, opts.Source, opts.Frac, opts.Seed); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// setModelDir records dir and whether the pipeline owns it: an empty dir or
// a path that is not an existing directory now is owned.
func (p *Pipeline) setModelDir(dir string) {
	p.modelDir = dir
	p.ownsDir = dir == "" || !storage.IsDir(dir)
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase { return p.phase }

// ModelDir returns the model directory, empty before PrepareModel allocates one.
func (p *Pipeline) ModelDir() string { return p.modelDir }

// OwnsModelDir reports whether Close removes the model directory.
func (p *Pipeline) OwnsModelDir() bool { return p.ownsDir }

// Splits returns the surviving splits.
func (p *Pipeline) Splits() models.Split { return p.splits }

// Evaluation returns the last evaluation result, nil before EvaluateModel.
func (p *Pipeline) Evaluation() models.EvaluationResult { return p.evaluation }

// Model returns the constructed model, nil before PrepareModel.
func (p *Pipeline) Model() *estimator.Model { return p.model }

// Load reads source, normalizes labels and splits it.
func (p *Pipeline) Load(ctx context.Context, source string, frac float64, seed *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ds, err := dataset.Load(source)
	if err != nil {
		return err
	}
	p.opts.Source = source
	p.logger.Info("dataset loaded", zap.String("source", source), zap.Int("rows", ds.Len()))
	return p.LoadDataset(ds, frac, seed)
}

// LoadDataset splits an in-memory dataset.
func (p *Pipeline) LoadDataset(ds models.Dataset, frac float64, seed *int64) error {
	if p.phase > Split {
		return stateError("load", p.phase, Uninitialized)
	}
	splits, err := split.Balanced(ds, frac, seed)
	if err != nil {
		return err
	}
	p.data = ds
	p.phase = Loaded
	p.splits = splits
	p.phase = Split
	for _, name := range splits.Names() {
		p.logger.Debug("split", zap.String("name", name), zap.Int("rows", splits[name].Len()))
	}
	return nil
}

// Adapt builds training inputs for the train split and single-pass inputs for every split.
func (p *Pipeline) Adapt() error {
	if p.phase != Split {
		return stateError("adapt", p.phase, Split)
	}
	p.train = nil
	if train, ok := p.splits[models.SplitTrain]; ok {
		p.train = input.TrainInputs(map[string]models.Dataset{models.SplitTrain: train})
	}
	p.predict = input.PredictInputs(p.splits)
	p.phase = Adapted
	return nil
}

// inferenceOnly reports whether the pipeline was built without data.
func (p *Pipeline) inferenceOnly() bool {
	return p.phase == Uninitialized
}

// PrepareModel constructs the model, or reopens it when the directory holds
// one. modelDir overrides the configured directory when non-empty.
func (p *Pipeline) PrepareModel(ctx context.Context, modelDir string) error {
	if p.model != nil {
		return fmt.Errorf("%w: model already prepared in %s", ErrState, p.modelDir)
	}
	if p.phase != Adapted && !p.inferenceOnly() {
		return stateError("prepare model", p.phase, Adapted)
	}
	if modelDir != "" && modelDir != p.modelDir {
		p.setModelDir(modelDir)
	}
	if p.modelDir == "" {
		dir, err := os.MkdirTemp("", "joboffer-model-")
		if err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
		p.modelDir, p.ownsDir = dir, true
	}

	if p.embedder == nil {
		emb, err := embedding.Open(ctx, p.opts.Embedding)
		if err != nil {
			return err
		}
		p.embedder = emb
	}
	model, err := estimator.Construct(ctx, p.embedder, p.modelDir, p.opts.Estimator, estimator.WithLogger(p.logger))
	if err != nil {
		return err
	}
	p.model = model
	if !p.inferenceOnly() {
		p.phase = ModelReady
	}
	p.logger.Info("model ready", zap.String("dir", p.modelDir), zap.Int64("global_step", model.GlobalStep()))
	return nil
}

// TrainModel trains for steps optimizer steps (the configured count when
// steps <= 0). Without a train split it only advances the phase.
func (p *Pipeline) TrainModel(ctx context.Context, steps int) ([]models.TrainingOutcome, error) {
	if p.phase != ModelReady {
		return nil, stateError("train", p.phase, ModelReady)
	}
	if steps <= 0 {
		steps = p.opts.TrainSteps
	}
	var outcomes []models.TrainingOutcome
	if len(p.train) > 0 {
		var err error
		outcomes, err = p.model.Train(ctx, p.train, steps)
		if err != nil {
			return outcomes, err
		}
	} else {
		p.logger.Info("no train split, skipping training")
	}
	p.phase = Trained
	return outcomes, nil
}

// EvaluateModel evaluates every surviving split.
func (p *Pipeline) EvaluateModel(ctx context.Context) (models.EvaluationResult, error) {
	if p.phase != Trained && p.phase != Evaluated {
		return nil, stateError("evaluate", p.phase, Trained)
	}
	result, err := p.model.Evaluate(ctx, p.predict)
	if err != nil {
		return nil, err
	}
	p.evaluation = result
	p.phase = Evaluated
	return result, nil
}

func (p *Pipeline) requireModel(op string) error {
	if p.model == nil || (!p.inferenceOnly() && p.phase < ModelReady) {
		return stateError(op, p.phase, ModelReady)
	}
	return nil
}

// Predict returns one class id per row of ds, in row order.
func (p *Pipeline) Predict(ctx context.Context, ds models.Dataset) ([]int, error) {
	if err := p.requireModel("predict"); err != nil {
		return nil, err
	}
	return p.model.Predict(ctx, dataset.PreprocessAll(ds))
}

// Classification is the result of classifying one document.
type Classification struct {
	Label       string  `json:"label"`
	ClassID     int     `json:"class_id"`
	Probability float64 `json:"probability"`
}

// Classify labels a single document as "negative" or "positive".
func (p *Pipeline) Classify(ctx context.Context, doc string) (string, error) {
	c, err := p.ClassifyDetail(ctx, doc)
	if err != nil {
		return "", err
	}
	return c.Label, nil
}

// ClassifyDetail is Classify with the class id and positive-class probability.
func (p *Pipeline) ClassifyDetail(ctx context.Context, doc string) (Classification, error) {
	if err := p.requireModel("classify"); err != nil {
		return Classification{}, err
	}
	row := models.Dataset{{Payload: dataset.Preprocess(doc), Sentiment: models.Negative}}
	probs, err := p.model.PredictProba(ctx, row)
	if err != nil {
		return Classification{}, err
	}
	c := Classification{ClassID: models.Negative, Probability: probs[0]}
	if probs[0] >= 0.5 {
		c.ClassID = models.Positive
	}
	c.Label = models.LabelName(c.ClassID)
	return c, nil
}

// ExportModel copies the model directory to dst, constructing the model
// first if needed. Loaded data that was never adapted is adapted on the way.
func (p *Pipeline) ExportModel(ctx context.Context, dst string) error {
	if p.model == nil {
		if p.phase == Split {
			if err := p.Adapt(); err != nil {
				return err
			}
		}
		if err := p.PrepareModel(ctx, ""); err != nil {
			return err
		}
	}
	return p.model.Export(dst)
}

// Run executes adapt -> prepare model -> train -> evaluate.
func (p *Pipeline) Run(ctx context.Context) (models.EvaluationResult, error) {
	if err := p.Adapt(); err != nil {
		return nil, err
	}
	if err := p.PrepareModel(ctx, ""); err != nil {
		return nil, err
	}
	if _, err := p.TrainModel(ctx, 0); err != nil {
		return nil, err
	}
	return p.EvaluateModel(ctx)
}

// ConfusionView is the input for rendering a confusion matrix.
type ConfusionView struct {
	Title  string    `json:"title"`
	Labels [2]string `json:"labels"`
	// Counts is indexed [true][predicted]; Normalized divides each row by its sum.
	Counts     metrics.ConfusionMatrix `json:"counts"`
	Normalized [2][2]float64           `json:"normalized"`
}

// ConfusionMatrix predicts the named split and returns its confusion matrix.
func (p *Pipeline) ConfusionMatrix(ctx context.Context, splitName string) (*ConfusionView, error) {
	if err := p.requireModel("confusion matrix"); err != nil {
		return nil, err
	}
	ds, ok := p.splits[splitName]
	if !ok {
		return nil, fmt.Errorf("unknown split %q", splitName)
	}
	preds, err := p.model.Predict(ctx, ds)
	if err != nil {
		return nil, err
	}
	cm := metrics.NewConfusionMatrix(ds.Labels(), preds)
	return &ConfusionView{
		Title:      splitName + " data",
		Labels:     models.LabelNames,
		Counts:     cm,
		Normalized: cm.Normalized(),
	}, nil
}

// Close releases the embedder and removes an owned model directory.
// Removal is best effort. Close is idempotent.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.embedder != nil {
			err = p.embedder.Close()
		}
		if p.ownsDir && p.modelDir != "" {
			if rmErr := os.RemoveAll(p.modelDir); rmErr != nil {
				p.logger.Debug("remove model dir", zap.String("dir", p.modelDir), zap.Error(rmErr))
			}
		}
	})
	return err
}
