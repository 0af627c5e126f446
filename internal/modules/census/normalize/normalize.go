// Package normalize turns NOMIS JSON-stat payloads into CategoryRecords that follow a
// dataset's category schema.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/fetcher"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

type MalformedResponse struct {
	Dataset   string
	Geography types.GeographyCode
	Reason    string
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed response for dataset %s geography %s: %s", e.Dataset, e.Geography, e.Reason)
}

type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize maps raw onto ds.Categories in schema order. A leading total row is read
// when ds.HasTotal is set.
func (n *Normalizer) Normalize(ds types.DatasetSpec, raw fetcher.RawResponse) (types.CategoryRecord, error) {
	malformed := func(format string, args ...any) error {
		return &MalformedResponse{Dataset: ds.ID, Geography: raw.Geography, Reason: fmt.Sprintf(format, args...)}
	}

	if len(ds.Categories) == 0 {
		return types.CategoryRecord{}, malformed("dataset has no categories")
	}

	var p payload
	if err := json.Unmarshal(raw.Body, &p); err != nil {
		return types.CategoryRecord{}, malformed("decode payload: %v", err)
	}
	if msg := providerError(p.Error); msg != "" {
		return types.CategoryRecord{}, malformed("provider error: %s", msg)
	}

	values, err := p.values()
	if err != nil {
		return types.CategoryRecord{}, malformed("%v", err)
	}

	rows := len(ds.Categories)
	offset := 0
	if ds.HasTotal {
		rows++
		offset = 1
	}

	l := p.layout()
	if l.categories != 0 && l.categories != rows {
		return types.CategoryRecord{}, malformed("payload declares %d categories, dataset %s expects %d", l.categories, ds.ID, rows)
	}
	shape, err := detectShape(ds, l, rows, len(values))
	if err != nil {
		return types.CategoryRecord{}, malformed("%v", err)
	}

	rec := types.CategoryRecord{
		Dataset:    ds.ID,
		Geography:  raw.Geography,
		Categories: make([]types.Category, len(ds.Categories)),
	}

	switch shape {
	case ShapeCountPercentPairs, ShapeCountPercentBlocks:
		countAt, pctAt := pairAccessors(shape, l.measures, rows, values)
		for i, label := range ds.Categories {
			r := offset + i
			rec.Categories[i] = types.Category{Label: label, Count: countAt(r), HasCount: true, Percent: pctAt(r)}
		}
		if ds.HasTotal {
			rec.Total = countAt(0)
		} else {
			rec.Total = sumCounts(rec.Categories)
		}
		rec.Basis = types.BasisProvider

	case ShapePercentOnly:
		for i, label := range ds.Categories {
			rec.Categories[i] = types.Category{Label: label, Percent: values[offset+i]}
		}
		rec.Basis = types.BasisProvider

	case ShapeCountOnly:
		for i, label := range ds.Categories {
			rec.Categories[i] = types.Category{Label: label, Count: values[offset+i], HasCount: true}
		}
		denominator := 0.0
		if ds.HasTotal {
			denominator = values[0]
		}
		rec.Basis = types.BasisDeclaredTotal
		if denominator <= 0 {
			denominator = sumCounts(rec.Categories)
			rec.Basis = types.BasisCategorySum
			n.logger.Debug("declared total absent, using category sum",
				"dataset", ds.ID,
				"geography", raw.Geography,
				"sum", denominator,
			)
		}
		if denominator <= 0 {
			return types.CategoryRecord{}, malformed("category counts sum to zero")
		}
		rec.Total = denominator
		for i := range rec.Categories {
			rec.Categories[i].Percent = rec.Categories[i].Count / denominator * 100
		}

	default:
		return types.CategoryRecord{}, malformed("unrecognised shape %s", shape)
	}

	return rec, nil
}

// pairAccessors returns count and percent lookups by row for the two-measure shapes.
func pairAccessors(shape Shape, declared []types.Measure, rows int, values []float64) (func(int) float64, func(int) float64) {
	countPos, pctPos := 0, 1
	if len(declared) == 2 && declared[0] == types.MeasurePercent {
		countPos, pctPos = 1, 0
	}
	if shape == ShapeCountPercentBlocks {
		return func(r int) float64 { return values[countPos*rows+r] },
			func(r int) float64 { return values[pctPos*rows+r] }
	}
	return func(r int) float64 { return values[2*r+countPos] },
		func(r int) float64 { return values[2*r+pctPos] }
}

func sumCounts(cats []types.Category) float64 {
	var sum float64
	for _, c := range cats {
		sum += c.Count
	}
	return sum
}

// providerError extracts a message from NOMIS's {"error": ...} document, which may be a
// string or an object with a message field.
func providerError(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return ""
	}
	var obj struct {
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Description != "" {
			return obj.Description
		}
	}
	return string(raw)
}
