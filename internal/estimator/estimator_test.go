package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/hyperjump/joboffer/internal/embedding"
	"github.com/hyperjump/joboffer/internal/input"
	"github.com/hyperjump/joboffer/internal/models"
)

func testConfig() Config {
	return Config{
		ModuleSpec:   "hash://test-dim16",
		HiddenUnits:  []int{8, 4},
		LearningRate: 0.1,
		BatchSize:    8,
		Seed:         1,
	}
}

func testEmbedder() embedding.Embedder {
	return embedding.NewHashEmbedder("test-dim16", 16, 0, 64)
}

func offers(n int) models.Dataset {
	pos := []string{"great salary and remote work", "friendly team with bonus", "flexible hours and training"}
	neg := []string{"unpaid overtime every week", "toxic boss and low pay", "no contract and night shifts"}
	var ds models.Dataset
	for i := range n {
		if i%2 == 0 {
			ds = append(ds, models.Record{ID: i, Payload: pos[i/2%len(pos)], Sentiment: models.Positive})
		} else {
			ds = append(ds, models.Record{ID: i, Payload: neg[i/2%len(neg)], Sentiment: models.Negative})
		}
	}
	return ds
}

func construct(t *testing.T, dir string) *Model {
	t.Helper()
	m, err := Construct(context.Background(), testEmbedder(), dir, testConfig())
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	return m
}

func TestConstruct_WritesCheckpoint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	m := construct(t, dir)
	if !HasCheckpoint(dir) {
		t.Fatal("checkpoint not written")
	}
	if _, err := os.Stat(filepath.Join(dir, weightsFile)); err != nil {
		t.Fatalf("weights missing: %v", err)
	}
	if m.GlobalStep() != 0 {
		t.Errorf("GlobalStep = %d", m.GlobalStep())
	}
	if got := m.net.shape(); fmt.Sprint(got) != "[16 8 4 1]" {
		t.Errorf("shape = %v", got)
	}
	info, err := Inspect(dir)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.ModuleSpec != "hash://test-dim16" || info.InputDim != 16 || fmt.Sprint(info.HiddenUnits) != "[8 4]" {
		t.Errorf("Inspect = %+v", info)
	}
	if _, err := Inspect(t.TempDir()); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("Inspect empty dir: err = %v, want ErrCheckpoint", err)
	}
}

func TestTrain_ReducesLossAndReopens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := construct(t, dir)
	ds := offers(24)

	before, err := m.Evaluate(ctx, input.PredictInputs(map[string]models.Dataset{"train": ds}))
	if err != nil {
		t.Fatal(err)
	}
	outcomes, err := m.Train(ctx, input.TrainInputs(map[string]models.Dataset{"train": ds}), 150)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Steps != 150 || outcomes[0].GlobalStep != 150 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	after, err := m.Evaluate(ctx, input.PredictInputs(map[string]models.Dataset{"train": ds}))
	if err != nil {
		t.Fatal(err)
	}
	if after["train"].AverageLoss >= before["train"].AverageLoss {
		t.Errorf("loss did not decrease: %v -> %v", before["train"].AverageLoss, after["train"].AverageLoss)
	}
	if after["train"].GlobalStep != 150 || after["train"].Examples != 24 {
		t.Errorf("metrics = %+v", after["train"])
	}
	if f1 := after["train"].F1Score; f1 < 0 || f1 > 1 {
		t.Errorf("f1 = %v", f1)
	}

	written, err := ReadMetrics(dir, "train")
	if err != nil {
		t.Fatalf("ReadMetrics: %v", err)
	}
	if written.AverageLoss != after["train"].AverageLoss {
		t.Error("metrics.json does not match returned metrics")
	}

	want, _ := m.PredictProba(ctx, ds)
	reopened := construct(t, dir)
	if reopened.GlobalStep() != 150 {
		t.Errorf("reopened GlobalStep = %d", reopened.GlobalStep())
	}
	got, _ := reopened.PredictProba(ctx, ds)
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-12 {
			t.Fatalf("row %d: reopened prob %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConstruct_Mismatch(t *testing.T) {
	dir := t.TempDir()
	construct(t, dir)

	cfg := testConfig()
	cfg.HiddenUnits = []int{4}
	if _, err := Construct(context.Background(), testEmbedder(), dir, cfg); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("hidden mismatch err = %v", err)
	}
	other := embedding.NewHashEmbedder("test-dim16", 32, 0, 1)
	if _, err := Construct(context.Background(), other, dir, testConfig()); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("dimension mismatch err = %v", err)
	}
	cfg = testConfig()
	cfg.ModuleSpec = "hash://other-dim16"
	if _, err := Construct(context.Background(), testEmbedder(), dir, cfg); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("module mismatch err = %v", err)
	}
}

func TestPredict_LengthAndOrder(t *testing.T) {
	ctx := context.Background()
	m := construct(t, t.TempDir())
	for _, n := range []int{0, 1, 300} {
		ds := offers(n)
		preds, err := m.Predict(ctx, ds)
		if err != nil {
			t.Fatal(err)
		}
		if len(preds) != n {
			t.Errorf("n=%d: got %d predictions", n, len(preds))
		}
	}

	ds := offers(6)
	all, _ := m.PredictProba(ctx, ds)
	for i, r := range ds {
		one, _ := m.PredictProba(ctx, models.Dataset{r})
		if math.Abs(one[0]-all[i]) > 1e-12 {
			t.Errorf("row %d: batch prob %v, single prob %v", i, all[i], one[0])
		}
	}
}

func TestTrain_EmptySpecAndCancel(t *testing.T) {
	m := construct(t, t.TempDir())
	out, err := m.Train(context.Background(), input.TrainInputs(map[string]models.Dataset{"train": nil}), 10)
	if err != nil || out[0].Steps != 0 {
		t.Errorf("empty spec: %+v, %v", out, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Train(ctx, input.TrainInputs(map[string]models.Dataset{"train": offers(4)}), 10); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v", err)
	}
}

func TestExport(t *testing.T) {
	m := construct(t, t.TempDir())

	dst := filepath.Join(t.TempDir(), "export")
	if err := m.Export(dst); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !HasCheckpoint(dst) {
		t.Error("exported dir has no checkpoint")
	}

	busy := t.TempDir()
	marker := filepath.Join(busy, "keep.txt")
	if err := os.WriteFile(marker, []byte("mine"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Export(busy); !errors.Is(err, ErrExport) {
		t.Errorf("non-empty dst err = %v", err)
	}
	entries, _ := os.ReadDir(busy)
	if len(entries) != 1 {
		t.Errorf("destination modified: %d entries", len(entries))
	}

	if err := ExportDir(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrExport) {
		t.Errorf("missing src err = %v", err)
	}
}

func tinyLayers() []*dense {
	return []*dense{
		{in: 2, out: 2, w: []float64{0.5, -1, 0.25, 2}, b: []float64{0.1, -0.2}},
		{in: 2, out: 1, w: []float64{1.5, -0.5}, b: []float64{0.05}},
	}
}

// hostLogit mirrors the graph: relu(x*W0 + b0)*W1 + b1.
func hostLogit(layers []*dense, x []float64) float64 {
	act := x
	for li, l := range layers {
		next := make([]float64, l.out)
		for o := range l.out {
			s := l.b[o]
			for i, v := range act {
				s += v * l.w[i*l.out+o]
			}
			if li < len(layers)-1 && s < 0 {
				s = 0
			}
			next[o] = s
		}
		act = next
	}
	return act[0]
}

func TestNetwork_ForwardMatchesHostMath(t *testing.T) {
	solver, _ := newSolver(OptimizerSGD, 0.1)
	net, err := newNetwork(tinyLayers(), 4, solver)
	if err != nil {
		t.Fatalf("newNetwork: %v", err)
	}
	x := [][]float64{{1, 2}, {-0.5, 0.3}, {0, 0}}
	y := []float64{1, 0, 1}
	z, loss, err := net.forward(x, y)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(z) != len(x) {
		t.Fatalf("got %d logits for %d rows", len(z), len(x))
	}
	var want float64
	for i, row := range x {
		h := hostLogit(tinyLayers(), row)
		if math.Abs(z[i]-h) > 1e-9 {
			t.Errorf("row %d: logit %v, want %v", i, z[i], h)
		}
		want += sigmoidCrossEntropy(h, y[i])
	}
	if want /= float64(len(x)); math.Abs(loss-want) > 1e-9 {
		t.Errorf("loss = %v, want %v (padding must not count)", loss, want)
	}
}

func TestNetwork_PaddingIsolatesRows(t *testing.T) {
	solver, _ := newSolver(OptimizerAdagrad, 0.1)
	net, err := newNetwork(tinyLayers(), 8, solver)
	if err != nil {
		t.Fatal(err)
	}
	one, _, err := net.forward([][]float64{{0.7, -0.1}}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	many, _, err := net.forward([][]float64{{0.7, -0.1}, {3, 3}, {-2, 1}}, []float64{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if one[0] != many[0] {
		t.Errorf("row logit changed with batch contents: %v vs %v", one[0], many[0])
	}
	if _, _, err := net.forward(make([][]float64, 9), make([]float64, 9)); err == nil {
		t.Error("oversized batch should fail")
	}
	if _, _, err := net.forward([][]float64{{1}}, []float64{1}); err == nil {
		t.Error("short row should fail")
	}
}

func TestNetwork_TrainUpdatesWeights(t *testing.T) {
	for _, name := range []string{OptimizerSGD, OptimizerAdagrad} {
		t.Run(name, func(t *testing.T) {
			solver, err := newSolver(name, 0.2)
			if err != nil {
				t.Fatal(err)
			}
			layers := tinyLayers()
			net, err := newNetwork(layers, 4, solver)
			if err != nil {
				t.Fatal(err)
			}
			x := [][]float64{{1, 2}, {-1, 0.5}}
			y := []float64{0, 1}
			first, err := net.train(x, y)
			if err != nil {
				t.Fatalf("train: %v", err)
			}
			var last float64
			for range 50 {
				if last, err = net.train(x, y); err != nil {
					t.Fatal(err)
				}
			}
			if last >= first {
				t.Errorf("loss did not decrease: %v -> %v", first, last)
			}
			before := slices.Clone(layers[1].w)
			net.sync()
			if slices.Equal(before, layers[1].w) {
				t.Error("sync did not copy trained weights")
			}
		})
	}
}

func TestParseOptimizer(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"", OptimizerAdagrad, false},
		{" Adagrad ", OptimizerAdagrad, false},
		{"SGD", OptimizerSGD, false},
		{"adam", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOptimizer(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOptimizer(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestReadWeights_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if _, err := readWeights(dir); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("missing file err = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, weightsFile), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readWeights(dir); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("bad header err = %v", err)
	}
	if err := writeWeights(dir, tinyLayers()); err != nil {
		t.Fatal(err)
	}
	got, err := readWeights(dir)
	if err != nil {
		t.Fatalf("readWeights: %v", err)
	}
	if fmt.Sprint(layerShape(got)) != "[2 2 1]" || !slices.Equal(got[0].w, tinyLayers()[0].w) {
		t.Errorf("round trip = %v %v", layerShape(got), got[0].w)
	}
}
