package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	calls int
	sizes []int
	err   error
	dims  int
}

func (f *fakeModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.calls++
	f.sizes = append(f.sizes, len(contents))
	if f.err != nil {
		return nil, f.err
	}
	resp := &genai.EmbedContentResponse{}
	for _, c := range contents {
		vals := make([]float32, f.dims)
		vals[0] = float32(len(c.Parts[0].Text))
		vals[1] = 1
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: vals})
	}
	return resp, nil
}

func TestGeminiEmbedder_BatchAndCache(t *testing.T) {
	fake := &fakeModels{dims: 4}
	g := newGeminiEmbedder(fake, "", 4, 16)
	if g.Model() != defaultGeminiModel {
		t.Errorf("Model = %q", g.Model())
	}
	out, err := g.EmbedBatch(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatal(err)
	}
	// "a" -> (1, 1), "bbb" -> (3, 1) before normalization.
	if !(out[0][0] < out[1][0]) {
		t.Errorf("embeddings out of order: %v", out)
	}
	for i, v := range out {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("embedding %d not unit length: %v", i, v)
		}
	}
	if _, err := g.Embed(context.Background(), "bbb"); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1 (second lookup cached)", fake.calls)
	}
}

func TestGeminiEmbedder_Chunks(t *testing.T) {
	fake := &fakeModels{dims: 2}
	g := newGeminiEmbedder(fake, "m", 2, 1)
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = string(rune('a' + i%26))
	}
	if _, err := g.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if len(fake.sizes) != 3 || fake.sizes[0] != 100 || fake.sizes[2] != 50 {
		t.Errorf("request sizes = %v", fake.sizes)
	}
}

func TestGeminiEmbedder_Errors(t *testing.T) {
	boom := errors.New("quota")
	g := newGeminiEmbedder(&fakeModels{err: boom}, "m", 2, 1)
	if _, err := g.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped quota error", err)
	}
	g = newGeminiEmbedder(&fakeModels{dims: 3}, "m", 2, 1)
	if _, err := g.Embed(context.Background(), "x"); err == nil {
		t.Error("dimension mismatch should fail")
	}
	if _, err := NewGeminiEmbedder(context.Background(), " ", "m", 2, 1); err == nil {
		t.Error("empty api key should fail")
	}
}
