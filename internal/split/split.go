// Package split partitions labeled datasets into stratified train/test subsets.
package split

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hyperjump/joboffer/internal/models"
)

// ErrSplit is returned when the train fraction is outside (0, 1).
var ErrSplit = errors.New("invalid split")

// Balanced partitions ds into train and test, sampling positives and negatives
// independently with the same fraction and seed. Train and test parts are
// concatenated across classes, positives first. Empty splits are omitted.
// A nil seed draws a random seed shared by both classes.
func Balanced(ds models.Dataset, frac float64, seed *int64) (models.Split, error) {
	if err := checkFraction(frac); err != nil {
		return nil, err
	}
	s := rand.Int63()
	if seed != nil {
		s = *seed
	}

	posTrain, posTest := Sample(ds.Filter(models.Positive), frac, rand.New(rand.NewSource(s)))
	negTrain, negTest := Sample(ds.Filter(models.Negative), frac, rand.New(rand.NewSource(s)))

	out := models.Split{}
	if train := models.Concat(posTrain, negTrain); train.Len() > 0 {
		out[models.SplitTrain] = train
	}
	if test := models.Concat(posTest, negTest); test.Len() > 0 {
		out[models.SplitTest] = test
	}
	return out, nil
}

// Sample draws round-half-even(frac*n) rows for train in sampled order; the
// remaining rows form test in source order.
func Sample(ds models.Dataset, frac float64, rng *rand.Rand) (train, test models.Dataset) {
	n := ds.Len()
	if n == 0 {
		return nil, nil
	}
	nTrain := TrainSize(n, frac)
	perm := rng.Perm(n)

	picked := make([]bool, n)
	for _, idx := range perm[:nTrain] {
		train = append(train, ds[idx])
		picked[idx] = true
	}
	rest := make([]int, 0, n-nTrain)
	for i := range n {
		if !picked[i] {
			rest = append(rest, i)
		}
	}
	sort.Ints(rest)
	for _, idx := range rest {
		test = append(test, ds[idx])
	}
	return train, test
}

// TrainSize returns the number of train rows for a class of n rows.
func TrainSize(n int, frac float64) int {
	k := int(math.RoundToEven(frac * float64(n)))
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}

func checkFraction(frac float64) error {
	if math.IsNaN(frac) || frac <= 0 || frac >= 1 {
		return fmt.Errorf("%w: fraction %v must be in (0, 1)", ErrSplit, frac)
	}
	return nil
}
