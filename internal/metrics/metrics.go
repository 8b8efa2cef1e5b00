// Package metrics computes binary classification metrics.
package metrics

import "sort"

// F1 returns the harmonic mean of precision and recall, or 0 when both are (near) zero.
func F1(precision, recall float64) float64 {
	if precision+recall < 1e-12 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

// ConfusionMatrix holds 2x2 counts indexed [true][predicted].
type ConfusionMatrix [2][2]int

// NewConfusionMatrix counts label/prediction pairs. Values outside {0,1} are ignored.
func NewConfusionMatrix(labels, preds []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range labels {
		if i >= len(preds) {
			break
		}
		y, p := labels[i], preds[i]
		if y < 0 || y > 1 || p < 0 || p > 1 {
			continue
		}
		cm[y][p]++
	}
	return cm
}

// Total returns the number of counted pairs.
func (cm ConfusionMatrix) Total() int {
	return cm[0][0] + cm[0][1] + cm[1][0] + cm[1][1]
}

// Precision is TP / (TP + FP), 0 without positive predictions.
func (cm ConfusionMatrix) Precision() float64 {
	tp, fp := cm[1][1], cm[0][1]
	if tp+fp == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fp)
}

// Recall is TP / (TP + FN), 0 without positive labels.
func (cm ConfusionMatrix) Recall() float64 {
	tp, fn := cm[1][1], cm[1][0]
	if tp+fn == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fn)
}

// Accuracy is the fraction of correct predictions.
func (cm ConfusionMatrix) Accuracy() float64 {
	n := cm.Total()
	if n == 0 {
		return 0
	}
	return float64(cm[0][0]+cm[1][1]) / float64(n)
}

// Normalized divides each row by its sum. Rows without samples stay zero.
func (cm ConfusionMatrix) Normalized() [2][2]float64 {
	var out [2][2]float64
	for i := range 2 {
		sum := cm[i][0] + cm[i][1]
		if sum == 0 {
			continue
		}
		for j := range 2 {
			out[i][j] = float64(cm[i][j]) / float64(sum)
		}
	}
	return out
}

// AUC returns the ROC area for positive-class scores, using average ranks for ties.
// It is 0.5 when either class is absent.
func AUC(labels []int, scores []float64) float64 {
	n := len(labels)
	if len(scores) < n {
		n = len(scores)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var rankSum float64
	for i := range n {
		if labels[i] == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (rankSum - float64(pos*(pos+1))/2) / float64(pos*neg)
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
