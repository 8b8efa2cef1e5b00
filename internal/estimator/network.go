package estimator

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// dense holds the host copy of one fully connected layer. w is row-major
// [in][out] so it multiplies a [batch][in] input directly.
type dense struct {
	in, out int
	w, b    []float64
}

func newDense(in, out int, rng *rand.Rand) *dense {
	l := &dense{in: in, out: out, w: make([]float64, in*out), b: make([]float64, out)}
	// Glorot uniform
	limit := math.Sqrt(6 / float64(in+out))
	for i := range l.w {
		l.w[i] = (rng.Float64()*2 - 1) * limit
	}
	return l
}

func initLayers(inputDim int, hidden []int, rng *rand.Rand) []*dense {
	var layers []*dense
	in := inputDim
	for _, h := range hidden {
		layers = append(layers, newDense(in, h, rng))
		in = h
	}
	return append(layers, newDense(in, 1, rng))
}

// network is a gorgonia graph of ReLU hidden layers and a single logit,
// trained on sigmoid cross-entropy. The graph has a fixed batch dimension;
// shorter batches are zero padded and masked out of the loss.
type network struct {
	layers []*dense
	batch  int

	mu      sync.Mutex
	g       *G.ExprGraph
	x, y    *G.Node
	mask    *G.Node
	params  G.Nodes
	vm      G.VM
	solver  G.Solver
	cost    G.Value
	logitsV G.Value
}

func newNetwork(layers []*dense, batch int, solver G.Solver) (n *network, err error) {
	if len(layers) == 0 || batch <= 0 {
		return nil, fmt.Errorf("build network: no layers or batch size %d", batch)
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = nil, fmt.Errorf("build network: %v", r)
		}
	}()

	n = &network{layers: layers, batch: batch, solver: solver, g: G.NewGraph()}
	n.x = G.NewMatrix(n.g, tensor.Float64, G.WithShape(batch, layers[0].in), G.WithName("x"))
	n.y = G.NewMatrix(n.g, tensor.Float64, G.WithShape(batch, 1), G.WithName("y"))
	n.mask = G.NewMatrix(n.g, tensor.Float64, G.WithShape(batch, 1), G.WithName("mask"))

	h := n.x
	for i, l := range layers {
		w := G.NewMatrix(n.g, tensor.Float64, G.WithShape(l.in, l.out), G.WithName(fmt.Sprintf("w%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(l.in, l.out), tensor.WithBacking(slices.Clone(l.w)))))
		b := G.NewMatrix(n.g, tensor.Float64, G.WithShape(1, l.out), G.WithName(fmt.Sprintf("b%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(1, l.out), tensor.WithBacking(slices.Clone(l.b)))))
		n.params = append(n.params, w, b)

		h = G.Must(G.BroadcastAdd(G.Must(G.Mul(h, w)), b, nil, []byte{0}))
		if i < len(layers)-1 {
			h = G.Must(G.Rectify(h))
		}
	}

	// max(z, 0) - z*y + log(1 + exp(-|z|)), weighted by the mask.
	z := h
	perRow := G.Must(G.Add(
		G.Must(G.Sub(G.Must(G.Rectify(z)), G.Must(G.HadamardProd(z, n.y)))),
		G.Must(G.Log1p(G.Must(G.Exp(G.Must(G.Neg(G.Must(G.Abs(z)))))))),
	))
	cost := G.Must(G.Sum(G.Must(G.HadamardProd(perRow, n.mask))))
	if _, err := G.Grad(cost, n.params...); err != nil {
		return nil, fmt.Errorf("build network: gradients: %w", err)
	}
	G.Read(cost, &n.cost)
	G.Read(z, &n.logitsV)
	n.vm = G.NewTapeMachine(n.g, G.BindDualValues(n.params...))
	return n, nil
}

// shape returns the layer widths, input first.
func (n *network) shape() []int { return layerShape(n.layers) }

// forward returns one logit per row and the mean loss over the rows.
func (n *network) forward(x [][]float64, y []float64) ([]float64, float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.vm.Reset()
	if err := n.run(x, y); err != nil {
		return nil, 0, err
	}
	return n.readLogits(len(x)), n.readCost(), nil
}

// train takes one solver step on the batch and returns its loss before the update.
func (n *network) train(x [][]float64, y []float64) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.vm.Reset()
	if err := n.run(x, y); err != nil {
		return 0, err
	}
	loss := n.readCost()
	if err := n.solver.Step(G.NodesToValueGrads(n.params)); err != nil {
		return 0, fmt.Errorf("solver step: %w", err)
	}
	return loss, nil
}

func (n *network) run(x [][]float64, y []float64) error {
	rows := len(x)
	if rows == 0 || rows > n.batch {
		return fmt.Errorf("batch of %d rows, network takes 1 to %d", rows, n.batch)
	}
	in := n.layers[0].in
	xs := make([]float64, n.batch*in)
	ys := make([]float64, n.batch)
	ms := make([]float64, n.batch)
	for r, row := range x {
		if len(row) != in {
			return fmt.Errorf("row %d has %d features, network takes %d", r, len(row), in)
		}
		copy(xs[r*in:], row)
		ys[r] = y[r]
		ms[r] = 1 / float64(rows)
	}
	inputs := []struct {
		node *G.Node
		val  tensor.Tensor
	}{
		{n.x, tensor.New(tensor.WithShape(n.batch, in), tensor.WithBacking(xs))},
		{n.y, tensor.New(tensor.WithShape(n.batch, 1), tensor.WithBacking(ys))},
		{n.mask, tensor.New(tensor.WithShape(n.batch, 1), tensor.WithBacking(ms))},
	}
	for _, v := range inputs {
		if err := G.Let(v.node, v.val); err != nil {
			return fmt.Errorf("bind %s: %w", v.node.Name(), err)
		}
	}
	if err := n.vm.RunAll(); err != nil {
		return fmt.Errorf("run graph: %w", err)
	}
	return nil
}

func (n *network) readCost() float64 {
	return n.cost.Data().(float64)
}

func (n *network) readLogits(rows int) []float64 {
	return slices.Clone(n.logitsV.Data().([]float64)[:rows])
}

// sync copies the trained weights back into the host layers.
func (n *network) sync() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, l := range n.layers {
		copy(l.w, n.params[2*i].Value().Data().([]float64))
		copy(l.b, n.params[2*i+1].Value().Data().([]float64))
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// sigmoidCrossEntropy is the numerically stable log loss of a logit.
func sigmoidCrossEntropy(z, y float64) float64 {
	return math.Max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
}
