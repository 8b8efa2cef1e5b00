package estimator

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Optimizer names.
const (
	OptimizerAdagrad = "adagrad"
	OptimizerSGD     = "sgd"
)

// ParseOptimizer normalizes an optimizer name; empty selects Adagrad.
func ParseOptimizer(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return OptimizerAdagrad, nil
	case OptimizerAdagrad, OptimizerSGD:
		return n, nil
	}
	return "", fmt.Errorf("unknown optimizer %q", name)
}

// newSolver returns the gorgonia solver for an optimizer name.
func newSolver(name string, learningRate float64) (G.Solver, error) {
	n, err := ParseOptimizer(name)
	if err != nil {
		return nil, err
	}
	if n == OptimizerSGD {
		return G.NewVanillaSolver(G.WithLearnRate(learningRate)), nil
	}
	return G.NewAdaGradSolver(G.WithLearnRate(learningRate)), nil
}
