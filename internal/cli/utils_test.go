package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/joboffer/internal/metrics"
	"github.com/hyperjump/joboffer/internal/models"
	"github.com/hyperjump/joboffer/internal/pipeline"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{" JSON ", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleEvaluation() models.EvaluationResult {
	return models.EvaluationResult{
		"holdout":         {Accuracy: 0.5},
		models.SplitTest:  {Accuracy: 0.75, AUC: 0.8, GlobalStep: 100, Examples: 8},
		models.SplitTrain: {Accuracy: 0.9, GlobalStep: 100, Examples: 12},
	}
}

func TestWriteEvaluation_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvaluation(&buf, sampleEvaluation(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	train := strings.Index(out, "\ntrain ")
	test := strings.Index(out, "\ntest ")
	holdout := strings.Index(out, "\nholdout ")
	if train < 0 || test < 0 || holdout < 0 {
		t.Fatalf("missing split rows:\n%s", out)
	}
	if !(train < test && test < holdout) {
		t.Errorf("splits out of order:\n%s", out)
	}
	if !strings.Contains(out, "0.7500") || !strings.Contains(out, "accuracy") {
		t.Errorf("missing values:\n%s", out)
	}
}

func TestWriteEvaluation_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvaluation(&buf, sampleEvaluation(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.EvaluationResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded[models.SplitTest].AUC != 0.8 {
		t.Errorf("decoded test auc = %v", decoded[models.SplitTest].AUC)
	}
}

func TestWriteEvaluation_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvaluation(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No evaluation") {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	if err := WriteEvaluation(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "{}" {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteConfusion(t *testing.T) {
	cm := metrics.NewConfusionMatrix([]int{0, 0, 1, 1}, []int{0, 1, 1, 1})
	view := &pipeline.ConfusionView{
		Title:      "test data",
		Labels:     models.LabelNames,
		Counts:     cm,
		Normalized: cm.Normalized(),
	}
	var buf bytes.Buffer
	if err := WriteConfusion(&buf, view, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"test data", "negative", "positive", "1 (50%)", "2 (100%)", "0 (0%)", "█"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteConfusion(&buf, view, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded pipeline.ConfusionView
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Counts[1][1] != 2 || decoded.Normalized[0][1] != 0.5 {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestHeatCell(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, " "},
		{0.5, "▒"},
		{1, "█"},
		{2, "█"},
		{-1, " "},
	}
	for _, tt := range tests {
		if got := heatCell(tt.v); got != strings.Repeat(tt.want, cellWidth) {
			t.Errorf("heatCell(%v) = %q", tt.v, got)
		}
	}
}

func TestWriteRuns(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	runs := []*models.Run{
		{
			ID: "run-1", Source: "offers.csv", Status: models.RunStatusFinished,
			StartedAt: started, FinishedAt: &finished,
			Evaluation: models.EvaluationResult{models.SplitTest: {Accuracy: 0.875}},
		},
		{ID: "run-2", Source: "offers.csv", Status: models.RunStatusRunning, StartedAt: started},
	}
	var buf bytes.Buffer
	if err := WriteRuns(&buf, runs, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"run-1", "FINISHED", "1m30s", "0.8750", "run-2", "RUNNING"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteRuns(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON = %q", buf.String())
	}
}

func TestWriteRun_text(t *testing.T) {
	run := &models.Run{
		ID: "run-1", Source: "offers.csv", Status: models.RunStatusFailed, Error: "bad\nlabel",
		Params:    map[string]interface{}{"optimizer": "adagrad", "frac": 0.6},
		StartedAt: time.Now(),
	}
	var buf bytes.Buffer
	if err := WriteRun(&buf, run, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"run-1", "FAILED", "bad label", "frac", "adagrad"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "frac") > strings.Index(out, "optimizer") {
		t.Errorf("params not sorted:\n%s", out)
	}
}

func TestWriteClassifications(t *testing.T) {
	results := []ClassifiedDocument{
		{Document: "Great\tteam", Classification: pipeline.Classification{Label: "positive", ClassID: 1, Probability: 0.9}},
	}
	var buf bytes.Buffer
	if err := WriteClassifications(&buf, results, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "positive") || !strings.Contains(buf.String(), "Great team") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := WriteClassifications(&buf, results, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[0]["label"] != "positive" || decoded[0]["document"] != "Great\tteam" {
		t.Errorf("decoded %+v", decoded)
	}
}
