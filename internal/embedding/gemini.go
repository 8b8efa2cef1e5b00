package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/joboffer/pkg/utils"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel      = "text-embedding-004"
	defaultGeminiDimensions = 768
	// Gemini accepts at most this many contents per embed request.
	geminiBatchLimit = 100
)

// contentEmbedder is the subset of genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	models     contentEmbedder
	modelName  string
	dimensions int
	cache      *EmbeddingCache
}

// NewGeminiEmbedder creates an embedder configured for the Gemini API backend.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions, cacheSize int) (*GeminiEmbedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiEmbedder(client.Models, model, dimensions, cacheSize), nil
}

func newGeminiEmbedder(models contentEmbedder, model string, dimensions, cacheSize int) *GeminiEmbedder {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	if dimensions <= 0 {
		dimensions = defaultGeminiDimensions
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &GeminiEmbedder{
		models:     models,
		modelName:  model,
		dimensions: dimensions,
		cache:      NewEmbeddingCache(cacheSize),
	}
}

// Embed returns the embedding for text, using cache when available.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds uncached texts in requests of up to 100 contents.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if cached, ok := g.cache.Get(text); ok {
			out[i] = cached
			continue
		}
		pending = append(pending, i)
	}

	dims := int32(g.dimensions)
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dims}
	for start := 0; start < len(pending); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(pending))
		contents := make([]*genai.Content, 0, end-start)
		for _, idx := range pending[start:end] {
			contents = append(contents, genai.Text(texts[idx])...)
		}

		resp, err := g.models.EmbedContent(ctx, g.modelName, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		if resp == nil || len(resp.Embeddings) != len(contents) {
			return nil, fmt.Errorf("gemini api returned %d embeddings for %d texts", embeddingCount(resp), len(contents))
		}
		for j, idx := range pending[start:end] {
			emb := resp.Embeddings[j]
			if emb == nil || len(emb.Values) != g.dimensions {
				return nil, fmt.Errorf("gemini embedding %d has unexpected dimension", j)
			}
			// Reduced output dimensions are not unit length.
			utils.NormalizeL2(emb.Values)
			out[idx] = emb.Values
			g.cache.Set(texts[idx], emb.Values)
		}
	}
	return out, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

// Dimensions returns the embedding dimension.
func (g *GeminiEmbedder) Dimensions() int {
	return g.dimensions
}

// Model returns the Gemini model name.
func (g *GeminiEmbedder) Model() string {
	return g.modelName
}

// Close is a no-op; the genai client holds no releasable resources.
func (g *GeminiEmbedder) Close() error {
	return nil
}
