// Package importer loads the published deprivation, homelessness, crime and
// population CSV files into the local dataset store.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/repository"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/types"
)

type Importer struct {
	repo   repository.LocalDataRepository
	logger *slog.Logger
}

func New(repo repository.LocalDataRepository, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{repo: repo, logger: logger}
}

// ImportDeprivation joins the LSOA-to-ward lookup with the IMD file by LSOA
// code. Lookup rows without IMD figures are skipped.
func (im *Importer) ImportDeprivation(ctx context.Context, lookup, imd io.Reader) (int, error) {
	lsoas, err := ParseDeprivation(lookup, imd)
	if err != nil {
		return 0, err
	}
	if err := im.repo.UpsertLSOAs(ctx, lsoas); err != nil {
		return 0, fmt.Errorf("store lsoas: %w", err)
	}
	im.logger.Info("deprivation imported", "lsoas", len(lsoas))
	return len(lsoas), nil
}

func (im *Importer) ImportHomelessness(ctx context.Context, r io.Reader) (int, error) {
	points, err := ParseHomelessness(r)
	if err != nil {
		return 0, err
	}
	if err := im.repo.UpsertHomelessness(ctx, points); err != nil {
		return 0, fmt.Errorf("store homelessness: %w", err)
	}
	im.logger.Info("homelessness imported", "points", len(points))
	return len(points), nil
}

func (im *Importer) ImportCrime(ctx context.Context, r io.Reader) (int, error) {
	records, err := ParseCrime(r)
	if err != nil {
		return 0, err
	}
	if err := im.repo.UpsertCrime(ctx, records); err != nil {
		return 0, fmt.Errorf("store crime: %w", err)
	}
	im.logger.Info("crime imported", "records", len(records))
	return len(records), nil
}

func (im *Importer) ImportPopulation(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ParsePopulation(r)
	if err != nil {
		return 0, err
	}
	if err := im.repo.UpsertPopulation(ctx, rows); err != nil {
		return 0, fmt.Errorf("store population: %w", err)
	}
	im.logger.Info("population imported", "rows", len(rows))
	return len(rows), nil
}

type imdColumns struct {
	code, rank, decile                    int
	income, employment, education, health int
	crime, barriers, environment          int
}

func ParseDeprivation(lookup, imd io.Reader) ([]types.LSOA, error) {
	lt, err := readTable(lookup)
	if err != nil {
		return nil, fmt.Errorf("lsoa lookup: %w", err)
	}
	it, err := readTable(imd)
	if err != nil {
		return nil, fmt.Errorf("imd: %w", err)
	}

	lCode, err := lt.require("lsoa code", "LSOA21CD", "LSOA code (2021)", "LSOA code")
	if err != nil {
		return nil, fmt.Errorf("lsoa lookup: %w", err)
	}
	lWard, err := lt.require("ward name", "WD22NM", "WD23NM", "Ward name")
	if err != nil {
		return nil, fmt.Errorf("lsoa lookup: %w", err)
	}
	lName, _ := lt.column("LSOA21NM", "LSOA name (2021)", "LSOA name")
	lBorough, _ := lt.column("LAD22NM", "LAD23NM", "Local Authority District name (2019)")

	cols, err := findIMDColumns(it)
	if err != nil {
		return nil, fmt.Errorf("imd: %w", err)
	}
	byCode := make(map[string][]string, len(it.rows))
	for _, row := range it.rows {
		if code := cell(row, cols.code); code != "" {
			byCode[code] = row
		}
	}

	var out []types.LSOA
	for n, row := range lt.rows {
		code := cell(row, lCode)
		imdRow, ok := byCode[code]
		if code == "" || !ok {
			continue
		}
		l := types.LSOA{
			Code:    code,
			Name:    cell(row, lName),
			Ward:    cell(row, lWard),
			Borough: cell(row, lBorough),
		}
		if l.Name == "" {
			l.Name = code
		}
		if l.IMDRank, err = parseInt(cell(imdRow, cols.rank)); err != nil {
			return nil, fmt.Errorf("imd rank for %s: %w", code, err)
		}
		if l.IMDDecile, err = parseInt(cell(imdRow, cols.decile)); err != nil {
			return nil, fmt.Errorf("imd decile for %s: %w", code, err)
		}
		if l.IMDDecile < 1 || l.IMDDecile > 10 {
			return nil, fmt.Errorf("lookup row %d: imd decile %d out of range", n+2, l.IMDDecile)
		}
		l.IncomeDecile = optionalDecile(imdRow, cols.income)
		l.EmploymentDecile = optionalDecile(imdRow, cols.employment)
		l.EducationDecile = optionalDecile(imdRow, cols.education)
		l.HealthDecile = optionalDecile(imdRow, cols.health)
		l.CrimeDecile = optionalDecile(imdRow, cols.crime)
		l.BarriersDecile = optionalDecile(imdRow, cols.barriers)
		l.EnvironmentDecile = optionalDecile(imdRow, cols.environment)
		out = append(out, l)
	}
	return out, nil
}

func findIMDColumns(t *table) (imdColumns, error) {
	var c imdColumns
	var ok bool
	if c.code, ok = t.column("LSOA code (2021)", "LSOA21CD", "LSOA code"); !ok {
		if c.code, ok = t.columnContaining("lsoa code"); !ok {
			return c, fmt.Errorf("missing lsoa code column")
		}
	}
	if c.rank, ok = t.columnContaining("Index of Multiple Deprivation (IMD) Rank", "imd rank"); !ok {
		return c, fmt.Errorf("missing imd rank column")
	}
	if c.decile, ok = t.columnContaining("Index of Multiple Deprivation (IMD) Decile", "imd decile"); !ok {
		return c, fmt.Errorf("missing imd decile column")
	}
	c.income = optionalColumn(t, "Income Decile")
	c.employment = optionalColumn(t, "Employment Decile")
	c.education = optionalColumn(t, "Education, Skills and Training Decile", "Education Decile")
	c.health = optionalColumn(t, "Health Deprivation and Disability Decile", "Health Decile")
	c.crime = optionalColumn(t, "Crime Decile")
	c.barriers = optionalColumn(t, "Barriers to Housing and Services Decile", "Barriers Decile")
	c.environment = optionalColumn(t, "Living Environment Decile")
	return c, nil
}

func optionalColumn(t *table, keywords ...string) int {
	i, _ := t.columnContaining(keywords...)
	return i
}

// optionalDecile returns 0 for a missing or unusable domain decile.
func optionalDecile(row []string, i int) int {
	d, err := parseInt(cell(row, i))
	if err != nil || d < 1 || d > 10 {
		return 0
	}
	return d
}

var metadataRow = regexp.MustCompile(`(?i)source|email|downloaded|explanatory|date|note`)

// ParseHomelessness reads a wide file: an Area column followed by one column
// per quarter ("2023-24 Q1"). Footer rows and non-numeric cells are skipped.
func ParseHomelessness(r io.Reader) ([]types.HomelessnessPoint, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("homelessness: %w", err)
	}
	area, err := t.require("area", "Area")
	if err != nil {
		return nil, fmt.Errorf("homelessness: %w", err)
	}
	var quarters []int
	for i, h := range t.header {
		if i != area && strings.Contains(h, "Q") {
			quarters = append(quarters, i)
		}
	}
	if len(quarters) == 0 {
		return nil, fmt.Errorf("homelessness: no quarter columns")
	}

	var out []types.HomelessnessPoint
	for _, row := range t.rows {
		name := cell(row, area)
		if name == "" || metadataRow.MatchString(name) {
			continue
		}
		for _, q := range quarters {
			v, err := parseNumber(cell(row, q))
			if err != nil {
				continue
			}
			out = append(out, types.HomelessnessPoint{Area: name, Quarter: t.header[q], People: v})
		}
	}
	return out, nil
}

var crimeMonthLayouts = []string{"02/01/2006", "2006-01-02", "2006-01"}

// ParseCrime reads the Metropolitan Police borough extract. Months are stored
// as YYYY-MM and rows repeating a borough, month and subgroup are summed.
func ParseCrime(r io.Reader) ([]types.CrimeRecord, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("crime: %w", err)
	}
	var cols [5]int
	for i, names := range [][]string{
		{"Borough_SNT", "Borough"},
		{"Month_Year", "Month"},
		{"Offence Group"},
		{"Offence Subgroup"},
		{"Count"},
	} {
		if cols[i], err = t.require(names[0], names...); err != nil {
			return nil, fmt.Errorf("crime: %w", err)
		}
	}

	var out []types.CrimeRecord
	index := make(map[types.CrimeRecord]int)
	for n, row := range t.rows {
		month, err := parseMonth(cell(row, cols[1]))
		if err != nil {
			return nil, fmt.Errorf("crime row %d: %w", n+2, err)
		}
		count, err := parseInt(cell(row, cols[4]))
		if err != nil {
			return nil, fmt.Errorf("crime row %d: count: %w", n+2, err)
		}
		key := types.CrimeRecord{
			Borough:  cell(row, cols[0]),
			Month:    month,
			Group:    cell(row, cols[2]),
			Subgroup: cell(row, cols[3]),
		}
		if i, ok := index[key]; ok {
			out[i].Count += count
			continue
		}
		index[key] = len(out)
		key.Count = count
		out = append(out, key)
	}
	return out, nil
}

func parseMonth(s string) (string, error) {
	for _, layout := range crimeMonthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01"), nil
		}
	}
	return "", fmt.Errorf("unrecognised month %q", s)
}

// ParsePopulation reads the projections file: AREA_CODE, AREA_NAME, AGE_GROUP
// and one column per year. Blank cells are skipped.
func ParsePopulation(r io.Reader) ([]types.PopulationRow, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	code, _ := t.column("AREA_CODE")
	name, err := t.require("area name", "AREA_NAME")
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	age, err := t.require("age group", "AGE_GROUP")
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	years := make(map[int]int)
	for i, h := range t.header {
		if isDigits(h) {
			y, err := parseInt(h)
			if err != nil {
				return nil, fmt.Errorf("population: year column %q: %w", h, err)
			}
			years[i] = y
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("population: no year columns")
	}

	var out []types.PopulationRow
	for _, row := range t.rows {
		area := cell(row, name)
		if area == "" {
			continue
		}
		for i := range t.header {
			year, ok := years[i]
			if !ok {
				continue
			}
			v, err := parseNumber(cell(row, i))
			if err != nil {
				continue
			}
			out = append(out, types.PopulationRow{
				AreaCode:   cell(row, code),
				Area:       area,
				Age:        cell(row, age),
				Year:       year,
				Population: v,
			})
		}
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
