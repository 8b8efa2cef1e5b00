package embedding

import (
	"testing"
)

func TestEmbeddingCache_LRU(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("remote job"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("remote job", []float32{1, 2, 3})
	c.Set("night shifts", []float32{4, 5})
	c.Get("remote job")                 // now most recently used
	c.Set("great salary", []float32{6}) // evicts "night shifts"

	if _, ok := c.Get("night shifts"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	for _, key := range []string{"remote job", "great salary"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %q to remain", key)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	hits, misses := c.Stats()
	if hits != 3 || misses != 2 {
		t.Errorf("Stats = (%d, %d), want (3, 2)", hits, misses)
	}
}

func TestEmbeddingCache_Copies(t *testing.T) {
	c := NewEmbeddingCache(4)
	in := []float32{1, 2}
	c.Set("offer", in)
	in[0] = 99
	out, _ := c.Get("offer")
	if out[0] != 1 {
		t.Errorf("cache kept caller's slice: %v", out)
	}
	out[1] = 99
	again, _ := c.Get("offer")
	if again[1] != 2 {
		t.Errorf("cache returned shared slice: %v", again)
	}
}

func TestEmbeddingCache_Disabled(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("offer", []float32{1})
	if _, ok := c.Get("offer"); ok {
		t.Error("zero capacity cache should not store")
	}
}
