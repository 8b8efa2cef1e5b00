package dataset

import (
	"strings"
	"unicode"

	"github.com/hyperjump/joboffer/internal/models"
)

// Preprocess trims text and collapses whitespace runs to one space. Training
// rows and documents to classify go through it alike.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// PreprocessAll returns a copy of ds with every payload preprocessed.
func PreprocessAll(ds models.Dataset) models.Dataset {
	out := make(models.Dataset, len(ds))
	for i, r := range ds {
		r.Payload = Preprocess(r.Payload)
		out[i] = r
	}
	return out
}
