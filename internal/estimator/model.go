package estimator

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/hyperjump/joboffer/internal/embedding"
	"github.com/hyperjump/joboffer/internal/input"
	"github.com/hyperjump/joboffer/internal/models"
	"go.uber.org/zap"
)

// Model is a binary classifier persisted in a directory.
type Model struct {
	dir        string
	cfg        Config
	embedder   embedding.Embedder
	net        *network
	globalStep int64
	logger     *zap.Logger
	mu         sync.RWMutex
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets a logger for training progress.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// Construct reopens the model in dir, or builds a new one and writes its
// step-0 checkpoint. The embedder is the model's only input feature and is
// not closed by the model.
func Construct(ctx context.Context, emb embedding.Embedder, dir string, cfg Config, opts ...Option) (*Model, error) {
	if emb == nil {
		return nil, fmt.Errorf("estimator: embedder is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := &Model{dir: dir, cfg: cfg.withDefaults(), embedder: emb, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	if HasCheckpoint(dir) {
		if err := m.reopen(); err != nil {
			return nil, err
		}
		m.logger.Debug("model reopened", zap.String("dir", dir), zap.Int64("global_step", m.globalStep))
		return m, nil
	}

	name, err := ParseOptimizer(m.cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	m.cfg.Optimizer = name
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	layers := initLayers(emb.Dimensions(), m.cfg.HiddenUnits, rand.New(rand.NewSource(m.cfg.Seed)))
	if err := m.build(layers); err != nil {
		return nil, err
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	m.logger.Debug("model created", zap.String("dir", dir), zap.Ints("shape", m.net.shape()))
	return m, nil
}

func (m *Model) reopen() error {
	ckpt, err := readCheckpoint(m.dir)
	if err != nil {
		return err
	}
	if ckpt.InputDim != m.embedder.Dimensions() {
		return fmt.Errorf("%w: input dimension %d, embedder produces %d", ErrCheckpoint, ckpt.InputDim, m.embedder.Dimensions())
	}
	if !slices.Equal(ckpt.HiddenUnits, m.cfg.HiddenUnits) {
		return fmt.Errorf("%w: hidden units %v, configured %v", ErrCheckpoint, ckpt.HiddenUnits, m.cfg.HiddenUnits)
	}
	if m.cfg.ModuleSpec != "" && ckpt.ModuleSpec != "" && ckpt.ModuleSpec != m.cfg.ModuleSpec {
		return fmt.Errorf("%w: trained on %q, configured %q", ErrCheckpoint, ckpt.ModuleSpec, m.cfg.ModuleSpec)
	}
	layers, err := readWeights(m.dir)
	if err != nil {
		return err
	}
	want := append([]int{ckpt.InputDim}, ckpt.HiddenUnits...)
	if got := layerShape(layers); !slices.Equal(got, append(want, 1)) {
		return fmt.Errorf("%w: weights shape %v does not match metadata", ErrCheckpoint, got)
	}
	if _, err := ParseOptimizer(ckpt.Optimizer); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	if configured, _ := ParseOptimizer(m.cfg.Optimizer); configured != ckpt.Optimizer {
		m.logger.Warn("checkpoint optimizer differs from configuration, keeping checkpoint's",
			zap.String("checkpoint", ckpt.Optimizer), zap.String("configured", m.cfg.Optimizer))
	}
	m.cfg.Optimizer = ckpt.Optimizer
	m.cfg.LearningRate = ckpt.LearningRate
	if m.cfg.ModuleSpec == "" {
		m.cfg.ModuleSpec = ckpt.ModuleSpec
	}
	m.globalStep = ckpt.GlobalStep
	return m.build(layers)
}

// build compiles the graph over layers with the configured solver.
// Solver state such as Adagrad accumulators starts fresh.
func (m *Model) build(layers []*dense) error {
	solver, err := newSolver(m.cfg.Optimizer, m.cfg.LearningRate)
	if err != nil {
		return err
	}
	net, err := newNetwork(layers, m.cfg.BatchSize, solver)
	if err != nil {
		return err
	}
	m.net = net
	return nil
}

func layerShape(layers []*dense) []int {
	if len(layers) == 0 {
		return nil
	}
	s := []int{layers[0].in}
	for _, l := range layers {
		s = append(s, l.out)
	}
	return s
}

func (m *Model) save() error {
	m.net.sync()
	if err := writeWeights(m.dir, m.net.layers); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	ckpt := &checkpoint{
		FormatVersion: formatVersion,
		ModuleSpec:    m.cfg.ModuleSpec,
		InputDim:      m.net.layers[0].in,
		HiddenUnits:   m.cfg.HiddenUnits,
		Optimizer:     m.cfg.Optimizer,
		LearningRate:  m.cfg.LearningRate,
		GlobalStep:    m.globalStep,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := writeCheckpoint(m.dir, ckpt); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Dir returns the model directory.
func (m *Model) Dir() string { return m.dir }

// Config returns the effective configuration.
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.cfg
	c.HiddenUnits = slices.Clone(c.HiddenUnits)
	return c
}

// GlobalStep returns the number of optimizer steps taken over the model's life.
func (m *Model) GlobalStep() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalStep
}

// Train runs steps optimizer steps for each spec in order and persists the
// checkpoint after each. A spec with no rows takes no steps.
func (m *Model) Train(ctx context.Context, specs []input.Spec, steps int) ([]models.TrainingOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomes := make([]models.TrainingOutcome, 0, len(specs))
	for _, spec := range specs {
		rng := rand.New(rand.NewSource(m.cfg.Seed + m.globalStep))
		batches := spec.Batches(m.cfg.BatchSize, rng)
		out := models.TrainingOutcome{Name: spec.Name}
		var total float64
		for out.Steps < steps {
			batch, ok := batches.Next()
			if !ok {
				break
			}
			x, err := m.features(ctx, batch.Payloads)
			if err != nil {
				return outcomes, err
			}
			loss, err := m.net.train(x, toFloats(batch.Labels))
			if err != nil {
				return outcomes, err
			}
			m.globalStep++
			out.Steps++
			out.Loss = loss
			total += loss
			if m.cfg.LogEvery > 0 && m.globalStep%int64(m.cfg.LogEvery) == 0 {
				m.logger.Info("training",
					zap.String("input", spec.Name),
					zap.Int64("global_step", m.globalStep),
					zap.Float64("loss", loss))
			}
		}
		if out.Steps > 0 {
			out.AverageLoss = total / float64(out.Steps)
		}
		out.GlobalStep = m.globalStep
		if err := m.save(); err != nil {
			return outcomes, err
		}
		m.logger.Info("training finished",
			zap.String("input", spec.Name),
			zap.Int("steps", out.Steps),
			zap.Float64("average_loss", out.AverageLoss))
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// features embeds payloads into network inputs.
func (m *Model) features(ctx context.Context, payloads []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embs, err := m.embedder.EmbedBatch(ctx, payloads)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	dim := m.net.layers[0].in
	x := make([][]float64, len(embs))
	for i, e := range embs {
		if len(e) != dim {
			return nil, fmt.Errorf("embedding has dimension %d, model expects %d", len(e), dim)
		}
		row := make([]float64, dim)
		for j, v := range e {
			row[j] = float64(v)
		}
		x[i] = row
	}
	return x, nil
}

// logits runs inference over a single-pass spec, returning labels and logits in row order.
func (m *Model) logits(ctx context.Context, spec input.Spec) (labels []int, logits []float64, batchLosses []float64, err error) {
	batches := spec.Batches(m.cfg.BatchSize, nil)
	for {
		batch, ok := batches.Next()
		if !ok {
			return labels, logits, batchLosses, nil
		}
		x, err := m.features(ctx, batch.Payloads)
		if err != nil {
			return nil, nil, nil, err
		}
		z, loss, err := m.net.forward(x, toFloats(batch.Labels))
		if err != nil {
			return nil, nil, nil, err
		}
		batchLosses = append(batchLosses, loss)
		labels = append(labels, batch.Labels...)
		logits = append(logits, z...)
	}
}

// PredictProba returns the positive-class probability for each row, in row order.
func (m *Model) PredictProba(ctx context.Context, ds models.Dataset) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, z, _, err := m.logits(ctx, input.PredictInput("predict", ds))
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(ds))
	for i, v := range z {
		probs[i] = sigmoid(v)
	}
	return probs, nil
}

// Predict returns one class id per row, in row order.
func (m *Model) Predict(ctx context.Context, ds models.Dataset) ([]int, error) {
	probs, err := m.PredictProba(ctx, ds)
	if err != nil {
		return nil, err
	}
	return classes(probs), nil
}

func classes(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			out[i] = models.Positive
		}
	}
	return out
}

func toFloats(labels []int) []float64 {
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = float64(l)
	}
	return out
}
