package cli

import (
	"fmt"
	"io"

	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/pkg/utils"
)

// ClassifiedDocument pairs a document with its classification.
type ClassifiedDocument struct {
	Document string `json:"document"`
	pipeline.Classification
}

// WriteClassifications writes one result per document.
func WriteClassifications(w io.Writer, results []ClassifiedDocument, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []ClassifiedDocument{}
		}
		return WriteJSON(w, results)
	}
	for _, r := range results {
		fmt.Fprintf(w, "%-8s p(positive)=%.4f  %s\n", r.Label, r.Probability, utils.Truncate(utils.OneLine(r.Document), 60))
	}
	return nil
}
