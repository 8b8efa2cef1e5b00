// Package cli renders pipeline results for the joboffer command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/joboffer/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the output format named by s. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// orderedSplits returns the split names of eval: train, test, then the rest sorted.
func orderedSplits(eval models.EvaluationResult) []string {
	var names, rest []string
	for _, n := range []string{models.SplitTrain, models.SplitTest} {
		if _, ok := eval[n]; ok {
			names = append(names, n)
		}
	}
	for n := range eval {
		if n != models.SplitTrain && n != models.SplitTest {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

const rule = "─────────────────────────────────────────────────────────────────────────────"
