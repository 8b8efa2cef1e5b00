package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/joboffer/internal/pipeline"
)

// shades go from empty to full; a cell picks the shade for its row-normalized value.
var shades = []string{" ", "░", "▒", "▓", "█"}

const cellWidth = 10

// WriteConfusion renders a confusion matrix as a text heatmap or JSON.
// Rows are true labels, columns predicted labels.
func WriteConfusion(w io.Writer, view *pipeline.ConfusionView, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, view)
	}
	labelWidth := len("true \\ pred")
	for _, l := range view.Labels {
		labelWidth = max(labelWidth, len(l))
	}

	fmt.Fprintf(w, "\n%s\n\n", view.Title)
	fmt.Fprintf(w, "%-*s", labelWidth, "true \\ pred")
	for _, l := range view.Labels {
		fmt.Fprintf(w, " %*s", cellWidth, l)
	}
	fmt.Fprintln(w)
	for i, l := range view.Labels {
		fmt.Fprintf(w, "%-*s", labelWidth, l)
		for j := range view.Labels {
			fmt.Fprintf(w, " %s", heatCell(view.Normalized[i][j]))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-*s", labelWidth, "")
		for j := range view.Labels {
			cell := fmt.Sprintf("%d (%.0f%%)", view.Counts[i][j], view.Normalized[i][j]*100)
			fmt.Fprintf(w, " %*s", cellWidth, cell)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func heatCell(v float64) string {
	idx := int(v*float64(len(shades)-1) + 0.5)
	idx = min(max(idx, 0), len(shades)-1)
	return strings.Repeat(shades[idx], cellWidth)
}
