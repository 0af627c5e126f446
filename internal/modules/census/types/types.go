package types

import "time"

// GeographyCode identifies a ward, borough, region or country for the remote API.
type GeographyCode string

type Ward struct {
	Name string        `json:"name" yaml:"name"`
	Code GeographyCode `json:"code" yaml:"code"`
}

type Station struct {
	Name  string `json:"name" yaml:"name"`
	Wards []Ward `json:"wards" yaml:"wards"`
}

// ComparisonArea is a benchmark geography fetched directly rather than averaged.
type ComparisonArea struct {
	Name string        `json:"name" yaml:"name"`
	Code GeographyCode `json:"code" yaml:"code"`
}

// Measure is a NOMIS measure code as sent in the "measures" query parameter.
type Measure string

const (
	MeasureCount   Measure = "20100"
	MeasurePercent Measure = "20301"
)

// CategoryGroup folds several detailed categories into one broad category.
type CategoryGroup struct {
	Label   string   `json:"label" yaml:"label"`
	Members []string `json:"members" yaml:"members"`
}

type DatasetSpec struct {
	ID       string            `json:"id" yaml:"id"`
	Title    string            `json:"title" yaml:"title"`
	RemoteID string            `json:"remoteId" yaml:"remote_id"`
	Measures []Measure         `json:"measures" yaml:"measures"`
	Params   map[string]string `json:"params,omitempty" yaml:"params"`
	// HasTotal means the provider returns a leading "Total" row before the categories.
	HasTotal   bool            `json:"hasTotal" yaml:"has_total"`
	Categories []string        `json:"categories" yaml:"categories"`
	Groups     []CategoryGroup `json:"groups,omitempty" yaml:"groups"`
}

// Basis records how a record's percentages were obtained.
type Basis string

const (
	BasisProvider      Basis = "provider"
	BasisDeclaredTotal Basis = "declared_total"
	BasisCategorySum   Basis = "category_sum"
	BasisWardMean      Basis = "ward_mean"
	BasisLSOAShare     Basis = "lsoa_share"
	BasisGrouped       Basis = "grouped"
)

type Category struct {
	Label    string  `json:"label"`
	Count    float64 `json:"count"`
	HasCount bool    `json:"hasCount"`
	Percent  float64 `json:"percent"`
}

// CategoryRecord is one dataset's categories for one geography. Records are never mutated
// once built; derived records are new values.
type CategoryRecord struct {
	Dataset    string        `json:"dataset"`
	Geography  GeographyCode `json:"geography,omitempty"`
	Categories []Category    `json:"categories"`
	Total      float64       `json:"total"`
	Basis      Basis         `json:"basis"`
}

func (r CategoryRecord) Labels() []string {
	out := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		out[i] = c.Label
	}
	return out
}

func (r CategoryRecord) Percent(label string) (float64, bool) {
	for _, c := range r.Categories {
		if c.Label == label {
			return c.Percent, true
		}
	}
	return 0, false
}

func (r CategoryRecord) PercentSum() float64 {
	var sum float64
	for _, c := range r.Categories {
		sum += c.Percent
	}
	return sum
}

const LocalStudyArea = "Local Study Area"

type AreaRecord struct {
	Area   string         `json:"area"`
	Record CategoryRecord `json:"record"`
}

// ComparisonTable holds the Local Study Area first, then each comparison area in request
// order. Every record shares the dataset's ordered category labels.
type ComparisonTable struct {
	Station string       `json:"station"`
	Dataset string       `json:"dataset"`
	Labels  []string     `json:"labels"`
	Rows    []AreaRecord `json:"rows"`
}

func (t ComparisonTable) Areas() []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Area
	}
	return out
}

func (t ComparisonTable) Record(area string) (CategoryRecord, bool) {
	for _, row := range t.Rows {
		if row.Area == area {
			return row.Record, true
		}
	}
	return CategoryRecord{}, false
}

// CacheStats is a snapshot of one cache's counters.
type CacheStats struct {
	Entries   int       `json:"entries"`
	Capacity  int       `json:"capacity"`
	Hits      uint64    `json:"hits"`
	Misses    uint64    `json:"misses"`
	ClearedAt time.Time `json:"clearedAt,omitempty"`
}
