package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// DefaultModuleSpec is the embedding used when none is configured.
const DefaultModuleSpec = "hash://nnlm-en-dim128"

const (
	defaultHashDimensions = 128
	hashResolution        = 1 << 16
)

var dimSuffix = regexp.MustCompile(`dim(\d+)$`)

// HashEmbedder is a deterministic bag-of-words embedder. Each analyzer term
// maps to a pseudo-random vector in [-1, 1]^d; a document is the sum of its
// term vectors scaled by 1/sqrt(n).
type HashEmbedder struct {
	name       string
	dimensions int
	maxTokens  int
	cache      *EmbeddingCache
}

// NewHashEmbedder returns a hashed embedder. name selects the term salt so
// differently named modules produce unrelated vectors.
func NewHashEmbedder(name string, dimensions, maxTokens, cacheSize int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &HashEmbedder{
		name:       name,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      NewEmbeddingCache(cacheSize),
	}
}

// DimensionsFromName parses a trailing "dimN" from a module name, e.g. nnlm-en-dim128.
func DimensionsFromName(name string) (int, error) {
	m := dimSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0, nil
	}
	d, err := strconv.Atoi(m[1])
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: bad dimension in %q", ErrModuleSpec, name)
	}
	return d, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	terms := Terms(text)
	if e.maxTokens > 0 && len(terms) > e.maxTokens {
		terms = terms[:e.maxTokens]
	}
	emb := make([]float32, e.dimensions)
	if len(terms) > 0 {
		salt := TermHash(e.name)
		for _, term := range terms {
			h := TermHash(term) ^ salt
			for i := range emb {
				u := mix(h, uint32(i)+1, hashResolution)
				emb[i] += float32(u)/float32(hashResolution-1)*2 - 1
			}
		}
		scale := float32(1 / math.Sqrt(float64(len(terms))))
		for i := range emb {
			emb[i] *= scale
		}
	}
	e.cache.Set(text, emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
