// Package aggregate combines per-geography records into Local Study Area records and
// comparison tables.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

// RecordSource yields one normalized record per dataset and geography.
type RecordSource interface {
	Record(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (types.CategoryRecord, error)
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (types.CategoryRecord, error)

func (f RecordSourceFunc) Record(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (types.CategoryRecord, error) {
	return f(ctx, ds, code)
}

// Aggregator holds no state beyond its source.
type Aggregator struct {
	source RecordSource
}

func New(source RecordSource) *Aggregator {
	return &Aggregator{source: source}
}

// BuildLocalStudyArea averages the station's ward records. Every ward counts once,
// unweighted by population; a ward listed twice is averaged twice.
func (a *Aggregator) BuildLocalStudyArea(ctx context.Context, station types.Station, ds types.DatasetSpec) (types.CategoryRecord, error) {
	if len(station.Wards) == 0 {
		return types.CategoryRecord{}, &InvalidStation{Station: station.Name}
	}

	records := make([]types.CategoryRecord, 0, len(station.Wards))
	for _, ward := range station.Wards {
		rec, err := a.source.Record(ctx, ds, ward.Code)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.CategoryRecord{}, err
		}
		if err != nil {
			return types.CategoryRecord{}, &PartialDataError{Station: station.Name, Ward: ward, Err: err}
		}
		if err := CheckSchema(ds, ward.Name, rec); err != nil {
			return types.CategoryRecord{}, err
		}
		records = append(records, rec)
	}

	return Mean(ds, records), nil
}

// BuildComparisonTable returns the Local Study Area row followed by one row per area,
// in the order given.
func (a *Aggregator) BuildComparisonTable(ctx context.Context, station types.Station, ds types.DatasetSpec, areas []types.ComparisonArea) (types.ComparisonTable, error) {
	lsa, err := a.BuildLocalStudyArea(ctx, station, ds)
	if err != nil {
		return types.ComparisonTable{}, err
	}

	table := types.ComparisonTable{
		Station: station.Name,
		Dataset: ds.ID,
		Labels:  slices.Clone(ds.Categories),
		Rows:    make([]types.AreaRecord, 0, len(areas)+1),
	}
	table.Rows = append(table.Rows, types.AreaRecord{Area: types.LocalStudyArea, Record: lsa})

	for _, area := range areas {
		rec, err := a.source.Record(ctx, ds, area.Code)
		if err != nil {
			return types.ComparisonTable{}, fmt.Errorf("comparison area %q: %w", area.Name, err)
		}
		if err := CheckSchema(ds, area.Name, rec); err != nil {
			return types.ComparisonTable{}, err
		}
		table.Rows = append(table.Rows, types.AreaRecord{Area: area.Name, Record: rec})
	}
	return table, nil
}

// CheckSchema reports a *SchemaMismatch unless rec has exactly ds.Categories, in order.
func CheckSchema(ds types.DatasetSpec, area string, rec types.CategoryRecord) error {
	got := rec.Labels()
	if slices.Equal(got, ds.Categories) {
		return nil
	}
	return &SchemaMismatch{Dataset: ds.ID, Area: area, Want: slices.Clone(ds.Categories), Got: got}
}

// Mean is the unweighted per-category mean of records, which must already share ds's schema.
// Counts are averaged only when every record carries them.
func Mean(ds types.DatasetSpec, records []types.CategoryRecord) types.CategoryRecord {
	out := types.CategoryRecord{
		Dataset:    ds.ID,
		Categories: make([]types.Category, len(ds.Categories)),
		Basis:      types.BasisWardMean,
	}
	if len(records) == 0 {
		for i, label := range ds.Categories {
			out.Categories[i] = types.Category{Label: label}
		}
		return out
	}

	n := float64(len(records))
	for i, label := range ds.Categories {
		c := types.Category{Label: label, HasCount: true}
		for _, rec := range records {
			rc := rec.Categories[i]
			c.Percent += rc.Percent
			c.Count += rc.Count
			c.HasCount = c.HasCount && rc.HasCount
		}
		c.Percent /= n
		if c.HasCount {
			c.Count /= n
		} else {
			c.Count = 0
		}
		out.Categories[i] = c
	}
	for _, rec := range records {
		out.Total += rec.Total
	}
	out.Total /= n
	return out
}

// Regroup folds rec's categories into broad groups, summing percentages and counts.
// Categories that belong to no group are dropped.
func Regroup(rec types.CategoryRecord, groups []types.CategoryGroup) types.CategoryRecord {
	out := types.CategoryRecord{
		Dataset:    rec.Dataset,
		Geography:  rec.Geography,
		Total:      rec.Total,
		Categories: make([]types.Category, len(groups)),
		Basis:      types.BasisGrouped,
	}
	for i, g := range groups {
		c := types.Category{Label: g.Label, HasCount: len(g.Members) > 0}
		for _, m := range g.Members {
			for _, rc := range rec.Categories {
				if rc.Label != m {
					continue
				}
				c.Percent += rc.Percent
				c.Count += rc.Count
				c.HasCount = c.HasCount && rc.HasCount
			}
		}
		if !c.HasCount {
			c.Count = 0
		}
		out.Categories[i] = c
	}
	return out
}

// RegroupTable applies Regroup to every row of t.
func RegroupTable(t types.ComparisonTable, groups []types.CategoryGroup) types.ComparisonTable {
	out := types.ComparisonTable{
		Station: t.Station,
		Dataset: t.Dataset,
		Labels:  make([]string, len(groups)),
		Rows:    make([]types.AreaRecord, len(t.Rows)),
	}
	for i, g := range groups {
		out.Labels[i] = g.Label
	}
	for i, row := range t.Rows {
		out.Rows[i] = types.AreaRecord{Area: row.Area, Record: Regroup(row.Record, groups)}
	}
	return out
}
