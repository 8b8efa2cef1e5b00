package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/pkg/utils"
)

// WriteRuns writes a run list, one line per run.
func WriteRuns(w io.Writer, runs []*models.Run, format OutputFormat) error {
	if format == OutputJSON {
		if runs == nil {
			runs = []*models.Run{}
		}
		return WriteJSON(w, runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	fmt.Fprintf(w, "%-36s  %-8s  %-20s  %9s  %9s  %s\n", "id", "status", "started", "duration", "test_acc", "source")
	fmt.Fprintln(w, rule)
	for _, run := range runs {
		acc := "-"
		if m := run.Evaluation[models.SplitTest]; m != nil {
			acc = fmt.Sprintf("%.4f", m.Accuracy)
		}
		fmt.Fprintf(w, "%-36s  %-8s  %-20s  %9s  %9s  %s\n",
			run.ID, run.Status, run.StartedAt.Local().Format(time.DateTime), runDuration(run), acc,
			utils.Truncate(run.Source, 40))
	}
	return nil
}

// WriteRun writes the details of one run, including its evaluation.
func WriteRun(w io.Writer, run *models.Run, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, run)
	}
	fmt.Fprintf(w, "ID:          %s\n", run.ID)
	fmt.Fprintf(w, "Status:      %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", utils.OneLine(run.Error))
	}
	fmt.Fprintf(w, "Source:      %s\n", run.Source)
	if run.SourceFingerprint != "" {
		fmt.Fprintf(w, "Fingerprint: %s\n", run.SourceFingerprint)
	}
	fmt.Fprintf(w, "Model dir:   %s\n", run.ModelDir)
	fmt.Fprintf(w, "Started:     %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Duration:    %s\n", runDuration(run))
	if len(run.Params) > 0 {
		keys := make([]string, 0, len(run.Params))
		for k := range run.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Params:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-20s %v\n", k, run.Params[k])
		}
	}
	if len(run.Evaluation) > 0 {
		fmt.Fprintln(w)
		return WriteEvaluation(w, run.Evaluation, OutputText)
	}
	return nil
}

func runDuration(run *models.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
