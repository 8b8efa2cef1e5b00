package estimator

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	checkpointFile = "checkpoint.json"
	weightsFile    = "model.bin"
	formatVersion  = 2
)

var weightsMagic = [4]byte{'J', 'O', 'B', 'M'}

// checkpoint is the metadata written next to the weights.
type checkpoint struct {
	FormatVersion int       `json:"format_version"`
	ModuleSpec    string    `json:"module_spec"`
	InputDim      int       `json:"input_dim"`
	HiddenUnits   []int     `json:"hidden_units"`
	Optimizer     string    `json:"optimizer"`
	LearningRate  float64   `json:"learning_rate"`
	GlobalStep    int64     `json:"global_step"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasCheckpoint reports whether dir holds a model artifact.
func HasCheckpoint(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, checkpointFile))
	return err == nil
}

// CheckpointInfo describes a saved model.
type CheckpointInfo struct {
	ModuleSpec  string    `json:"module_spec"`
	InputDim    int       `json:"input_dim"`
	HiddenUnits []int     `json:"hidden_units"`
	Optimizer   string    `json:"optimizer"`
	GlobalStep  int64     `json:"global_step"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Inspect reads the metadata of the model in dir without loading weights.
func Inspect(dir string) (*CheckpointInfo, error) {
	ckpt, err := readCheckpoint(dir)
	if err != nil {
		return nil, err
	}
	return &CheckpointInfo{
		ModuleSpec:  ckpt.ModuleSpec,
		InputDim:    ckpt.InputDim,
		HiddenUnits: ckpt.HiddenUnits,
		Optimizer:   ckpt.Optimizer,
		GlobalStep:  ckpt.GlobalStep,
		UpdatedAt:   ckpt.UpdatedAt,
	}, nil
}

func readCheckpoint(dir string) (*checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(dir, checkpointFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCheckpoint, checkpointFile, err)
	}
	if ckpt.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCheckpoint, ckpt.FormatVersion)
	}
	return &ckpt, nil
}

// writeFileAtomic writes via a temp file and rename so readers never see a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeCheckpoint(dir string, ckpt *checkpoint) error {
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, checkpointFile), func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// writeWeights persists the layers. Format (little-endian): magic (4),
// version (4), layer count (4), then per layer: in (4), out (4), the
// [in][out] weights and the out biases, all float64.
func writeWeights(dir string, layers []*dense) error {
	return writeFileAtomic(filepath.Join(dir, weightsFile), func(w io.Writer) error {
		if _, err := w.Write(weightsMagic[:]); err != nil {
			return fmt.Errorf("write magic: %w", err)
		}
		header := []uint32{formatVersion, uint32(len(layers))}
		if err := binary.Write(w, binary.LittleEndian, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for i, l := range layers {
			if err := binary.Write(w, binary.LittleEndian, []uint32{uint32(l.in), uint32(l.out)}); err != nil {
				return fmt.Errorf("write layer %d shape: %w", i, err)
			}
			for _, p := range [][]float64{l.w, l.b} {
				if err := binary.Write(w, binary.LittleEndian, p); err != nil {
					return fmt.Errorf("write layer %d: %w", i, err)
				}
			}
		}
		return nil
	})
}

// maxLayerWidth bounds layer sizes read from disk.
const maxLayerWidth = 1 << 16

// readWeights loads layers written by writeWeights.
func readWeights(dir string) ([]*dense, error) {
	f, err := os.Open(filepath.Join(dir, weightsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrCheckpoint, weightsFile)
		}
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != weightsMagic {
		return nil, fmt.Errorf("%w: bad weights header", ErrCheckpoint)
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCheckpoint, err)
	}
	if header[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported weights version %d", ErrCheckpoint, header[0])
	}
	var layers []*dense
	for i := uint32(0); i < header[1]; i++ {
		var shape [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &shape); err != nil {
			return nil, fmt.Errorf("%w: read layer %d shape: %v", ErrCheckpoint, i, err)
		}
		in, out := int(shape[0]), int(shape[1])
		if in <= 0 || out <= 0 || in > maxLayerWidth || out > maxLayerWidth {
			return nil, fmt.Errorf("%w: layer %d has shape %dx%d", ErrCheckpoint, i, in, out)
		}
		l := &dense{in: in, out: out, w: make([]float64, in*out), b: make([]float64, out)}
		for _, p := range [][]float64{l.w, l.b} {
			if err := binary.Read(r, binary.LittleEndian, p); err != nil {
				return nil, fmt.Errorf("%w: read layer %d: %v", ErrCheckpoint, i, err)
			}
		}
		layers = append(layers, l)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrCheckpoint)
	}
	return layers, nil
}
