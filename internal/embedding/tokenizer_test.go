package embedding

import (
	"testing"
)

func TestTerms(t *testing.T) {
	terms := Terms("Great Team, REMOTE work!")
	want := []string{"great", "team", "remote", "work"}
	if len(terms) != len(want) {
		t.Fatalf("Terms = %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d = %q, want %q", i, terms[i], want[i])
		}
	}
	if len(Terms("  ")) != 0 {
		t.Error("blank text should have no terms")
	}
}

func TestTermTokenizer_Tokenize(t *testing.T) {
	tok := &TermTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths %d/%d/%d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsToken {
		t.Errorf("expected CLS %d, got %d", clsToken, ids[0])
	}
	if ids[3] != sepToken {
		t.Errorf("expected SEP at 3, got %d", ids[3])
	}
	for i := 1; i <= 2; i++ {
		if ids[i] < 1000 || ids[i] >= vocabSize {
			t.Errorf("id %d out of vocabulary: %d", i, ids[i])
		}
	}
	if attn[4] != 0 {
		t.Error("padding should be masked")
	}
}

func TestTermHash(t *testing.T) {
	if TermHash("abc") != TermHash("abc") {
		t.Error("hash should be deterministic")
	}
	if TermHash("abc") == TermHash("abd") {
		t.Error("distinct terms should hash differently")
	}
	if got := mix(12345, 7, 10); got >= 10 {
		t.Errorf("mix out of range: %d", got)
	}
}
