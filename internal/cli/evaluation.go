package cli

import (
	"fmt"
	"io"

	"github.com/hyperjump/joboffer/internal/models"
)

// WriteEvaluation writes per-split metrics to w in the given format.
func WriteEvaluation(w io.Writer, eval models.EvaluationResult, format OutputFormat) error {
	if format == OutputJSON {
		if eval == nil {
			eval = models.EvaluationResult{}
		}
		return WriteJSON(w, eval)
	}
	if len(eval) == 0 {
		_, err := fmt.Fprintln(w, "No evaluation results.")
		return err
	}
	fmt.Fprintf(w, "%-8s %9s %9s %9s %9s %9s %9s %9s %8s %8s\n",
		"split", "accuracy", "baseline", "auc", "precision", "recall", "f1", "avg_loss", "step", "examples")
	fmt.Fprintln(w, rule)
	for _, name := range orderedSplits(eval) {
		m := eval[name]
		if m == nil {
			continue
		}
		fmt.Fprintf(w, "%-8s %9.4f %9.4f %9.4f %9.4f %9.4f %9.4f %9.4f %8d %8d\n",
			name, m.Accuracy, m.AccuracyBaseline, m.AUC, m.Precision, m.Recall, m.F1Score,
			m.AverageLoss, m.GlobalStep, m.Examples)
	}
	return nil
}

// WriteTraining writes one line per training input.
func WriteTraining(w io.Writer, outcomes []models.TrainingOutcome, format OutputFormat) error {
	if format == OutputJSON {
		if outcomes == nil {
			outcomes = []models.TrainingOutcome{}
		}
		return WriteJSON(w, outcomes)
	}
	for _, o := range outcomes {
		fmt.Fprintf(w, "trained %-8s steps=%d global_step=%d loss=%.4f avg_loss=%.4f\n",
			o.Name, o.Steps, o.GlobalStep, o.Loss, o.AverageLoss)
	}
	return nil
}
