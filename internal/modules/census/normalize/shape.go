package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

// Shape tags how a provider laid out the value vector.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeCountPercentPairs is [count0, pct0, count1, pct1, ...].
	ShapeCountPercentPairs
	// ShapeCountPercentBlocks is [count0, count1, ..., pct0, pct1, ...].
	ShapeCountPercentBlocks
	ShapePercentOnly
	ShapeCountOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeCountPercentPairs:
		return "count_percent_pairs"
	case ShapeCountPercentBlocks:
		return "count_percent_blocks"
	case ShapePercentOnly:
		return "percent_only"
	case ShapeCountOnly:
		return "count_only"
	default:
		return "unknown"
	}
}

const measuresDimension = "measures"

// payload is the subset of a JSON-stat document the normalizer reads.
type payload struct {
	Error     json.RawMessage          `json:"error"`
	Value     json.RawMessage          `json:"value"`
	ID        []string                 `json:"id"`
	Size      []int                    `json:"size"`
	Dimension map[string]jsonDimension `json:"dimension"`
}

type jsonDimension struct {
	Category struct {
		Index json.RawMessage `json:"index"`
	} `json:"category"`
}

// layout is what the payload declares about its measures, if anything.
type layout struct {
	measures      []types.Measure // in provider order
	measuresFirst bool            // measures vary slower than the category dimension
	categories    int             // cells per measure from size, 0 when not declared
}

func (p payload) layout() layout {
	var l layout
	dim, ok := p.Dimension[measuresDimension]
	if !ok {
		return l
	}
	l.measures = indexKeys(dim.Category.Index)

	pos := -1
	for i, id := range p.ID {
		if id == measuresDimension {
			pos = i
			break
		}
	}
	if pos < 0 || len(p.Size) != len(p.ID) {
		return l
	}
	l.categories = 1
	for i, s := range p.Size {
		if i != pos {
			l.categories *= s
		}
	}
	// Any dimension after measures with more than one category varies faster.
	for i := pos + 1; i < len(p.Size); i++ {
		if p.Size[i] > 1 {
			l.measuresFirst = true
			break
		}
	}
	return l
}

// indexKeys reads a JSON-stat category index, either ["a","b"] or {"a":0,"b":1}.
func indexKeys(raw json.RawMessage) []types.Measure {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]types.Measure, len(list))
		for i, s := range list {
			out[i] = types.Measure(s)
		}
		return out
	}
	var obj map[string]int
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return obj[keys[i]] < obj[keys[j]] })
	out := make([]types.Measure, len(keys))
	for i, k := range keys {
		out[i] = types.Measure(k)
	}
	return out
}

// values decodes the value container: a dense array or a sparse index->value object.
func (p payload) values() ([]float64, error) {
	raw := bytes.TrimSpace(p.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("no value field")
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode value array: %w", err)
		}
		n, err := p.cells(len(items))
		if err != nil {
			return nil, err
		}
		if n != 0 && n != len(items) {
			return nil, fmt.Errorf("size declares %d values, got %d", n, len(items))
		}
		out := make([]float64, len(items))
		for i, item := range items {
			v, err := coerce(item)
			if err != nil {
				return nil, fmt.Errorf("value[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case '{':
		var items map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode value object: %w", err)
		}
		// Every index below n must be present, so n can never exceed len(items).
		n, err := p.cells(len(items))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			for k := range items {
				i, err := strconv.Atoi(k)
				if err != nil {
					return nil, fmt.Errorf("value index %q: %w", k, err)
				}
				if i < 0 || i >= len(items) {
					return nil, fmt.Errorf("value index %d out of range for %d values", i, len(items))
				}
				if i+1 > n {
					n = i + 1
				}
			}
		}
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			item, ok := items[strconv.Itoa(i)]
			if !ok {
				return nil, fmt.Errorf("value[%d] missing from sparse value", i)
			}
			v, err := coerce(item)
			if err != nil {
				return nil, fmt.Errorf("value[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is neither an array nor an object")
	}
}

// cells is the value count declared by size, 0 when size is absent. A product above
// limit is rejected before anything is allocated for it.
func (p payload) cells(limit int) (int, error) {
	if len(p.Size) == 0 {
		return 0, nil
	}
	n := 1
	for i, s := range p.Size {
		if s < 1 {
			return 0, fmt.Errorf("size[%d] is %d", i, s)
		}
		if n > limit/s {
			return 0, fmt.Errorf("size declares more than the %d values present", limit)
		}
		n *= s
	}
	return n, nil
}

// coerce accepts JSON numbers and numeric strings.
func coerce(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("null value")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("non-numeric value %s", string(raw))
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", s)
	}
	return f, nil
}

// detectShape picks the parsing rule for n expected rows and m values. A declared
// measures layout must account for every value; surplus values are rejected.
func detectShape(ds types.DatasetSpec, l layout, n, m int) (Shape, error) {
	measures := l.measures
	declared := len(measures) > 0
	if !declared {
		measures = ds.Measures
	}
	hasCount, hasPct := false, false
	for _, ms := range measures {
		switch ms {
		case types.MeasureCount:
			hasCount = true
		case types.MeasurePercent:
			hasPct = true
		}
	}

	if !declared {
		// Without a declared layout, infer from length: at least 2n values are
		// count/percent pairs, at least n is a single measure.
		switch {
		case m >= 2*n && hasCount && hasPct:
			return ShapeCountPercentPairs, nil
		case m >= n && hasPct:
			return ShapePercentOnly, nil
		case m >= n && hasCount:
			return ShapeCountOnly, nil
		}
		return ShapeUnknown, fmt.Errorf("expected at least %d values, got %d", n, m)
	}

	switch {
	case hasCount && hasPct:
		if m != 2*n {
			return ShapeUnknown, fmt.Errorf("expected %d count/percent values, got %d", 2*n, m)
		}
		if l.measuresFirst {
			return ShapeCountPercentBlocks, nil
		}
		return ShapeCountPercentPairs, nil
	case hasPct:
		if m != n {
			return ShapeUnknown, fmt.Errorf("expected %d percent values, got %d", n, m)
		}
		return ShapePercentOnly, nil
	case hasCount:
		if m != n {
			return ShapeUnknown, fmt.Errorf("expected %d count values, got %d", n, m)
		}
		return ShapeCountOnly, nil
	}
	return ShapeUnknown, fmt.Errorf("no count or percent measure declared")
}
