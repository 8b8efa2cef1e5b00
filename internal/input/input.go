// Package input describes how named datasets are fed to the estimator.
package input

import (
	"math/rand"
	"sort"

	"github.com/hyperjump/joboffer/internal/dataset"
	"github.com/hyperjump/joboffer/internal/models"
)

// DefaultBatchSize is used when a non-positive batch size is requested.
const DefaultBatchSize = 128

// Spec is a named, read-only descriptor of how to feed a dataset to the model.
// Epochs == 0 means the data repeats indefinitely.
type Spec struct {
	Name    string
	Data    models.Dataset
	Target  string
	Shuffle bool
	Epochs  int
}

// Unbounded reports whether the spec repeats without end.
func (s Spec) Unbounded() bool {
	return s.Epochs <= 0
}

// TrainInputs builds shuffled, unbounded specs, one per name, in name order.
func TrainInputs(named map[string]models.Dataset) []Spec {
	return build(named, true, 0)
}

// PredictInputs builds ordered single-pass specs, one per name.
func PredictInputs(named map[string]models.Dataset) map[string]Spec {
	out := make(map[string]Spec, len(named))
	for _, s := range build(named, false, 1) {
		out[s.Name] = s
	}
	return out
}

// PredictInput wraps a single dataset for ordered single-pass inference.
func PredictInput(name string, ds models.Dataset) Spec {
	return Spec{Name: name, Data: ds, Target: dataset.ColumnSentiment, Epochs: 1}
}

func build(named map[string]models.Dataset, shuffle bool, epochs int) []Spec {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	specs := make([]Spec, 0, len(names))
	for _, n := range names {
		specs = append(specs, Spec{
			Name:    n,
			Data:    named[n],
			Target:  dataset.ColumnSentiment,
			Shuffle: shuffle,
			Epochs:  epochs,
		})
	}
	return specs
}

// Batch is a slice of rows with their payloads and labels.
type Batch struct {
	Records  models.Dataset
	Payloads []string
	Labels   []int
}

// Len returns the batch size.
func (b Batch) Len() int { return len(b.Records) }

// Batcher yields batches from a spec. Rows are only touched when Next is called.
type Batcher struct {
	spec      Spec
	batchSize int
	rng       *rand.Rand
	order     []int
	pos       int
	epoch     int
}

// Batches returns a Batcher over the spec. rng drives shuffling and may be nil
// for specs that do not shuffle.
func (s Spec) Batches(batchSize int, rng *rand.Rand) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &Batcher{spec: s, batchSize: batchSize, rng: rng}
}

// Epoch returns the number of epochs started so far.
func (b *Batcher) Epoch() int { return b.epoch }

// Next returns the next batch, or false when the spec is exhausted.
// Batches do not cross epoch boundaries, so the last batch of an epoch may be short.
func (b *Batcher) Next() (Batch, bool) {
	n := b.spec.Data.Len()
	if n == 0 {
		return Batch{}, false
	}
	if b.order == nil || b.pos >= n {
		if !b.spec.Unbounded() && b.epoch >= b.spec.Epochs {
			return Batch{}, false
		}
		b.startEpoch(n)
	}
	end := b.pos + b.batchSize
	if end > n {
		end = n
	}
	batch := Batch{
		Records:  make(models.Dataset, 0, end-b.pos),
		Payloads: make([]string, 0, end-b.pos),
		Labels:   make([]int, 0, end-b.pos),
	}
	for _, idx := range b.order[b.pos:end] {
		r := b.spec.Data[idx]
		batch.Records = append(batch.Records, r)
		batch.Payloads = append(batch.Payloads, r.Payload)
		batch.Labels = append(batch.Labels, r.Sentiment)
	}
	b.pos = end
	return batch, true
}

func (b *Batcher) startEpoch(n int) {
	if b.spec.Shuffle {
		b.order = b.rng.Perm(n)
	} else {
		b.order = make([]int, n)
		for i := range b.order {
			b.order[i] = i
		}
	}
	b.pos = 0
	b.epoch++
}
