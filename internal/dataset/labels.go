package dataset

import (
	"fmt"
	"strings"

	"github.com/hyperjump/joboffer/internal/models"
)

// NormalizeLabel maps "positive"/"negative" (any case, surrounding space ignored) to 1/0.
func NormalizeLabel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case models.LabelNames[models.Positive]:
		return models.Positive, nil
	case models.LabelNames[models.Negative]:
		return models.Negative, nil
	}
	return 0, fmt.Errorf("%w: unknown sentiment label %q", ErrInput, s)
}
