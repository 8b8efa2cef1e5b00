package models

// Metrics is the evaluation record for one split.
type Metrics struct {
	Accuracy         float64 `json:"accuracy"`
	AccuracyBaseline float64 `json:"accuracy_baseline"`
	AUC              float64 `json:"auc"`
	AverageLoss      float64 `json:"average_loss"`
	LabelMean        float64 `json:"label/mean"`
	Loss             float64 `json:"loss"`
	Precision        float64 `json:"precision"`
	PredictionMean   float64 `json:"prediction/mean"`
	Recall           float64 `json:"recall"`
	F1Score          float64 `json:"f1_score"`
	GlobalStep       int64   `json:"global_step"`
	Examples         int     `json:"examples"`
	// Confusion holds raw counts indexed [true][predicted].
	Confusion [2][2]int `json:"confusion"`
}

// EvaluationResult maps split name to its metrics.
type EvaluationResult map[string]*Metrics

// TrainingOutcome reports one named training input's run.
type TrainingOutcome struct {
	Name        string  `json:"name"`
	GlobalStep  int64   `json:"global_step"`
	Steps       int     `json:"steps"`
	Loss        float64 `json:"loss"`
	AverageLoss float64 `json:"average_loss"`
}
