package metrics

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestF1(t *testing.T) {
	tests := []struct {
		p, r, want float64
	}{
		{0, 0, 0},
		{1, 1, 1},
		{0.5, 0.5, 0.5},
		{1, 0, 0},
		{1e-13, 1e-13, 0},
		{0.8, 0.4, 2 * 0.8 * 0.4 / 1.2},
	}
	for _, tt := range tests {
		if got := F1(tt.p, tt.r); !almost(got, tt.want) {
			t.Errorf("F1(%v, %v) = %v, want %v", tt.p, tt.r, got, tt.want)
		}
	}
}

func TestConfusionMatrix(t *testing.T) {
	labels := []int{1, 1, 1, 0, 0, 0, 0}
	preds := []int{1, 1, 0, 0, 0, 1, 0}
	cm := NewConfusionMatrix(labels, preds)
	want := ConfusionMatrix{{3, 1}, {1, 2}}
	if cm != want {
		t.Fatalf("cm = %v, want %v", cm, want)
	}
	if !almost(cm.Precision(), 2.0/3) {
		t.Errorf("Precision = %v", cm.Precision())
	}
	if !almost(cm.Recall(), 2.0/3) {
		t.Errorf("Recall = %v", cm.Recall())
	}
	if !almost(cm.Accuracy(), 5.0/7) {
		t.Errorf("Accuracy = %v", cm.Accuracy())
	}
	norm := cm.Normalized()
	if !almost(norm[0][0], 0.75) || !almost(norm[1][1], 2.0/3) {
		t.Errorf("Normalized = %v", norm)
	}
}

func TestConfusionMatrix_Empty(t *testing.T) {
	var cm ConfusionMatrix
	if cm.Precision() != 0 || cm.Recall() != 0 || cm.Accuracy() != 0 {
		t.Error("empty matrix metrics should be 0")
	}
	if cm.Normalized() != [2][2]float64{} {
		t.Error("empty rows should stay zero")
	}
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		scores []float64
		want   float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"ties", []int{0, 1}, []float64{0.5, 0.5}, 0.5},
		{"one class", []int{1, 1}, []float64{0.3, 0.6}, 0.5},
		{"mixed", []int{0, 1, 0, 1}, []float64{0.1, 0.4, 0.5, 0.8}, 0.75},
	}
	for _, tt := range tests {
		if got := AUC(tt.labels, tt.scores); !almost(got, tt.want) {
			t.Errorf("%s: AUC = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMean(t *testing.T) {
	if Mean(nil) != 0 {
		t.Error("Mean(nil) != 0")
	}
	if !almost(Mean([]float64{1, 2, 3}), 2) {
		t.Error("Mean wrong")
	}
}
