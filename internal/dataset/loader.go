// Package dataset reads labeled job-offer tables and normalizes their labels.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/joboffer/internal/models"
	"github.com/xuri/excelize/v2"
)

// ErrInput is returned for unreadable tables, missing columns, or unknown labels.
var ErrInput = errors.New("invalid input")

// Required column names.
const (
	ColumnPayload   = "payload"
	ColumnSentiment = "sentiment"
)

// Load reads a labeled table from path. The format follows the extension:
// .xlsx (first sheet), .tsv, otherwise comma-separated.
func Load(path string) (models.Dataset, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInput, path, err)
	}
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(content)
	case ".tsv":
		rows, err = readDelimited(content, '\t')
	default:
		rows, err = readDelimited(content, ',')
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInput, path, err)
	}
	return FromRows(rows)
}

// FromRows builds a dataset from a header row followed by data rows.
// Blank rows are skipped; IDs count data rows only.
func FromRows(rows [][]string) (models.Dataset, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrInput)
	}
	payloadCol, sentimentCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case ColumnPayload:
			payloadCol = i
		case ColumnSentiment:
			sentimentCol = i
		}
	}
	if payloadCol < 0 {
		return nil, fmt.Errorf("%w: missing column %q", ErrInput, ColumnPayload)
	}
	if sentimentCol < 0 {
		return nil, fmt.Errorf("%w: missing column %q", ErrInput, ColumnSentiment)
	}

	ds := make(models.Dataset, 0, len(rows)-1)
	for line, row := range rows[1:] {
		if blank(row) {
			continue
		}
		label, err := NormalizeLabel(cell(row, sentimentCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line+2, err)
		}
		ds = append(ds, models.Record{
			ID:        len(ds),
			Payload:   Preprocess(cell(row, payloadCol)),
			Sentiment: label,
		})
	}
	return ds, nil
}

func readDelimited(content []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
