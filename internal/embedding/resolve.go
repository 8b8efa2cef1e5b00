package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Options configures Open.
type Options struct {
	// ModuleSpec selects the embedder: hash://<name>, onnx://<path>,
	// a path ending in .onnx, or gemini://<model>.
	ModuleSpec string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	APIKey     string
}

// Open resolves opts.ModuleSpec to an Embedder.
func Open(ctx context.Context, opts Options) (Embedder, error) {
	spec := strings.TrimSpace(opts.ModuleSpec)
	if spec == "" {
		spec = DefaultModuleSpec
	}

	scheme, rest, hasScheme := strings.Cut(spec, "://")
	switch {
	case hasScheme && scheme == "hash":
		if rest == "" {
			return nil, fmt.Errorf("%w: %q has no module name", ErrModuleSpec, spec)
		}
		dims, err := DimensionsFromName(rest)
		if err != nil {
			return nil, err
		}
		if dims == 0 {
			dims = opts.Dimensions
		}
		return NewHashEmbedder(rest, dims, opts.MaxTokens, opts.CacheSize), nil

	case hasScheme && scheme == "onnx":
		return openONNX(rest, opts)

	case !hasScheme && strings.HasSuffix(strings.ToLower(spec), ".onnx"):
		return openONNX(spec, opts)

	case hasScheme && scheme == "gemini":
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		return NewGeminiEmbedder(ctx, key, rest, opts.Dimensions, opts.CacheSize)
	}
	return nil, fmt.Errorf("%w: %q", ErrModuleSpec, spec)
}

func openONNX(path string, opts Options) (Embedder, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: onnx module has no model path", ErrModuleSpec)
	}
	dims := opts.Dimensions
	if dims <= 0 {
		dims = 384
	}
	e, err := NewONNXEmbedder(path, dims, opts.MaxTokens, opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return e, nil
}
