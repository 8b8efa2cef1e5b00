package embedding

import (
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

var (
	analyzerOnce sync.Once
	analyze      func([]byte) analysis.TokenStream
)

// Terms splits text with the bleve standard analyzer (unicode word
// segmentation, lower-casing, English stop words removed).
func Terms(text string) []string {
	analyzerOnce.Do(func() {
		if a := bleve.NewIndexMapping().AnalyzerNamed(standard.Name); a != nil {
			analyze = a.Analyze
		}
	})
	if analyze == nil {
		return nil
	}
	stream := analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// TermTokenizer maps analyzer terms to hashed vocabulary ids, framed by [CLS] and [SEP].
type TermTokenizer struct{}

// Tokenize produces padded token IDs up to maxTokens.
func (t *TermTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, term := range Terms(text) {
		if pos >= maxTokens-1 {
			break
		}
		// ids below 1000 are reserved for special tokens
		inputIDs[pos] = int64(1000 + mix(TermHash(term), 0, vocabSize-1000))
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepToken
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// TermHash folds a term into 32 bits with the xorshift mixer.
func TermHash(term string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(term); i++ {
		h = mix(h^uint32(term[i]), uint32(i)+1, 0)
	}
	return h
}

// mix is a salted xorshift hash. With max > 0 the result is reduced into
// [0, max) by a multiply-shift; max == 0 returns the full 32-bit value.
func mix(n, salt, max uint32) uint32 {
	m := n - salt
	m ^= m << 2
	m ^= m << 3
	m ^= m >> 5
	m ^= m >> 7
	m ^= m << 11
	m ^= m << 13
	m ^= m >> 17
	m ^= m << 19
	m += salt
	if max == 0 {
		return m
	}
	return uint32((uint64(m) * uint64(max)) >> 32)
}
