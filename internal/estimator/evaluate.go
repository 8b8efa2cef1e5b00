package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/joboffer/internal/input"
	"github.com/hyperjump/joboffer/internal/metrics"
	"github.com/hyperjump/joboffer/internal/models"
	"go.uber.org/zap"
)

// Evaluate runs one pass over each spec and writes eval_<name>/metrics.json.
func (m *Model) Evaluate(ctx context.Context, specs map[string]input.Spec) (models.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(models.EvaluationResult, len(specs))
	for _, name := range names {
		labels, z, batchLosses, err := m.logits(ctx, specs[name])
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", name, err)
		}
		met := m.summarize(labels, z, batchLosses)
		if err := writeMetrics(m.dir, name, met); err != nil {
			return nil, err
		}
		m.logger.Info("evaluation",
			zap.String("split", name),
			zap.Float64("accuracy", met.Accuracy),
			zap.Float64("precision", met.Precision),
			zap.Float64("recall", met.Recall),
			zap.Float64("f1_score", met.F1Score))
		result[name] = met
	}
	return result, nil
}

func (m *Model) summarize(labels []int, z, batchLosses []float64) *models.Metrics {
	probs := make([]float64, len(z))
	var lossSum float64
	for i, v := range z {
		probs[i] = sigmoid(v)
		lossSum += sigmoidCrossEntropy(v, float64(labels[i]))
	}
	cm := metrics.NewConfusionMatrix(labels, classes(probs))
	labelMean := metrics.Mean(toFloats(labels))

	met := &models.Metrics{
		Accuracy:         cm.Accuracy(),
		AccuracyBaseline: math.Max(labelMean, 1-labelMean),
		AUC:              metrics.AUC(labels, probs),
		LabelMean:        labelMean,
		Loss:             metrics.Mean(batchLosses),
		Precision:        cm.Precision(),
		PredictionMean:   metrics.Mean(probs),
		Recall:           cm.Recall(),
		GlobalStep:       m.globalStep,
		Examples:         len(labels),
		Confusion:        cm,
	}
	if len(labels) > 0 {
		met.AverageLoss = lossSum / float64(len(labels))
	} else {
		met.AccuracyBaseline = 0
	}
	met.F1Score = metrics.F1(met.Precision, met.Recall)
	return met
}

func writeMetrics(dir, split string, met *models.Metrics) error {
	evalDir := filepath.Join(dir, "eval_"+split)
	if err := os.MkdirAll(evalDir, 0755); err != nil {
		return fmt.Errorf("create eval dir: %w", err)
	}
	data, err := json.MarshalIndent(met, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(evalDir, "metrics.json"), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// ReadMetrics loads the metrics last written for split.
func ReadMetrics(dir, split string) (*models.Metrics, error) {
	data, err := os.ReadFile(filepath.Join(dir, "eval_"+split, "metrics.json"))
	if err != nil {
		return nil, err
	}
	var met models.Metrics
	if err := json.Unmarshal(data, &met); err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	return &met, nil
}
