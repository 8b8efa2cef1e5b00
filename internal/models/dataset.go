// Package models defines core data structures for labeled datasets, evaluation results, and runs.
package models

// Binary class ids.
const (
	Negative = 0
	Positive = 1
)

// LabelNames maps class ids to human labels.
var LabelNames = [2]string{"negative", "positive"}

// LabelName returns the human label for a class id, or "" when the id is not binary.
func LabelName(classID int) string {
	if classID < 0 || classID >= len(LabelNames) {
		return ""
	}
	return LabelNames[classID]
}

// Record is one labeled row of the source table.
// ID is the 0-based row position in the source and identifies the row across splits.
type Record struct {
	ID        int    `json:"id"`
	Payload   string `json:"payload"`
	Sentiment int    `json:"sentiment"`
}

// Dataset is an ordered table of records.
type Dataset []Record

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d)
}

// Payloads returns the text column in row order.
func (d Dataset) Payloads() []string {
	out := make([]string, len(d))
	for i, r := range d {
		out[i] = r.Payload
	}
	return out
}

// Labels returns the label column in row order.
func (d Dataset) Labels() []int {
	out := make([]int, len(d))
	for i, r := range d {
		out[i] = r.Sentiment
	}
	return out
}

// Filter returns the rows whose label equals sentiment, preserving order.
func (d Dataset) Filter(sentiment int) Dataset {
	var out Dataset
	for _, r := range d {
		if r.Sentiment == sentiment {
			out = append(out, r)
		}
	}
	return out
}

// Concat returns a new dataset with the rows of all parts in order.
func Concat(parts ...Dataset) Dataset {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Dataset, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Split names.
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

// Split maps a split name to its rows. Empty splits are absent.
type Split map[string]Dataset

// Names returns the present split names, train before test.
func (s Split) Names() []string {
	var names []string
	for _, n := range []string{SplitTrain, SplitTest} {
		if _, ok := s[n]; ok {
			names = append(names, n)
		}
	}
	return names
}
