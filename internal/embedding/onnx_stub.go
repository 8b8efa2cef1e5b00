//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(modelPath string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: onnx model %s requires CGO; build with CGO_ENABLED=1 and onnxruntime", ErrModuleSpec, modelPath)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
