// Package summary derives the dashboard figures for the local tabular datasets.
// Functions here are pure; callers load rows through the repository.
package summary

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	censustypes "github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/types"
)

var ErrNoData = errors.New("no data")

// DeprivationDataset is the dataset id carried by quintile records.
const DeprivationDataset = "deprivation"

var QuintileLabels = []string{
	"Most Deprived 20%",
	"More Deprived 20%",
	"Middle 20%",
	"Less Deprived 20%",
	"Least Deprived 20%",
}

// NormalizeWardName lowercases, spells out "&", drops apostrophes and other
// punctuation, and collapses whitespace.
func NormalizeWardName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", "and")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type MatchMode string

const (
	MatchExact     MatchMode = "exact"
	MatchSubstring MatchMode = "substring"
)

// MatchLSOAs selects the LSOAs whose ward matches one of wards by normalised
// name. When nothing matches exactly, an LSOA matches if its normalised ward
// contains a normalised station ward. Results are unique by code and ordered
// by IMD rank, most deprived first.
func MatchLSOAs(lsoas []types.LSOA, wards []string) ([]types.LSOA, MatchMode) {
	want := make(map[string]bool, len(wards))
	for _, w := range wards {
		if n := NormalizeWardName(w); n != "" {
			want[n] = true
		}
	}

	matched := filterLSOAs(lsoas, func(ward string) bool { return want[ward] })
	mode := MatchExact
	if len(matched) == 0 {
		mode = MatchSubstring
		matched = filterLSOAs(lsoas, func(ward string) bool {
			for w := range want {
				if strings.Contains(ward, w) {
					return true
				}
			}
			return false
		})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].IMDRank < matched[j].IMDRank })
	return matched, mode
}

func filterLSOAs(lsoas []types.LSOA, keep func(normWard string) bool) []types.LSOA {
	seen := make(map[string]bool)
	var out []types.LSOA
	for _, l := range lsoas {
		if seen[l.Code] || !keep(NormalizeWardName(l.Ward)) {
			continue
		}
		seen[l.Code] = true
		out = append(out, l)
	}
	return out
}

// Quintile folds an IMD decile into a quintile, 1 (most deprived) to 5.
func Quintile(decile int) (int, error) {
	if decile < 1 || decile > 10 {
		return 0, fmt.Errorf("imd decile %d out of range 1-10", decile)
	}
	return (decile + 1) / 2, nil
}

// DeprivationQuintiles returns the share of LSOAs in each IMD quintile as a
// category record. Every quintile is present, with zero counts where empty.
func DeprivationQuintiles(lsoas []types.LSOA) (censustypes.CategoryRecord, error) {
	if len(lsoas) == 0 {
		return censustypes.CategoryRecord{}, ErrNoData
	}
	counts := make([]int, len(QuintileLabels))
	for _, l := range lsoas {
		q, err := Quintile(l.IMDDecile)
		if err != nil {
			return censustypes.CategoryRecord{}, fmt.Errorf("lsoa %s: %w", l.Code, err)
		}
		counts[q-1]++
	}
	total := float64(len(lsoas))
	rec := censustypes.CategoryRecord{
		Dataset:    DeprivationDataset,
		Categories: make([]censustypes.Category, len(QuintileLabels)),
		Total:      total,
		Basis:      censustypes.BasisLSOAShare,
	}
	for i, label := range QuintileLabels {
		rec.Categories[i] = censustypes.Category{
			Label:    label,
			Count:    float64(counts[i]),
			HasCount: true,
			Percent:  float64(counts[i]) / total * 100,
		}
	}
	return rec, nil
}

// HomelessnessByArea groups points per area, keeping areas in first-seen order
// and each series in input order.
func HomelessnessByArea(points []types.HomelessnessPoint) []types.HomelessnessStats {
	index := make(map[string]int)
	var out []types.HomelessnessStats
	for _, p := range points {
		i, ok := index[p.Area]
		if !ok {
			i = len(out)
			index[p.Area] = i
			out = append(out, types.HomelessnessStats{Area: p.Area, Min: p.People, Max: p.People})
		}
		s := &out[i]
		s.Series = append(s.Series, p)
		s.Mean += p.People
		s.Min = min(s.Min, p.People)
		s.Max = max(s.Max, p.People)
	}
	for i := range out {
		out[i].Mean /= float64(len(out[i].Series))
	}
	return out
}

const topOffenceGroups = 10

// SummarizeCrime totals one borough's offences by month and offence group.
func SummarizeCrime(borough string, records []types.CrimeRecord) (types.CrimeSummary, error) {
	if len(records) == 0 {
		return types.CrimeSummary{}, fmt.Errorf("crime for %q: %w", borough, ErrNoData)
	}
	monthly := make(map[string]int)
	groups := make(map[string]int)
	subgroups := make(map[string]map[string]int)
	total := 0
	for _, r := range records {
		total += r.Count
		monthly[r.Month] += r.Count
		groups[r.Group] += r.Count
		if subgroups[r.Group] == nil {
			subgroups[r.Group] = make(map[string]int)
		}
		subgroups[r.Group][r.Subgroup] += r.Count
	}

	s := types.CrimeSummary{Borough: borough, Total: total, Subgroups: make(map[string][]types.GroupShare)}

	months := make([]string, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		mc := types.MonthCount{Month: m, Count: monthly[m]}
		s.Monthly = append(s.Monthly, mc)
		if len(s.Monthly) == 1 || mc.Count > s.Peak.Count {
			s.Peak = mc
		}
		if len(s.Monthly) == 1 || mc.Count < s.Lowest.Count {
			s.Lowest = mc
		}
	}
	s.LatestMonth = months[len(months)-1]
	s.AverageMonthly = float64(total) / float64(len(months))

	ranked := rankShares(groups, total)
	s.TopGroup = ranked[0]
	s.TopGroups = ranked[:min(topOffenceGroups, len(ranked))]
	for g, subs := range subgroups {
		s.Subgroups[g] = rankShares(subs, groups[g])
	}
	return s, nil
}

// rankShares orders labels by count descending, then label.
func rankShares(counts map[string]int, total int) []types.GroupShare {
	out := make([]types.GroupShare, 0, len(counts))
	for label, n := range counts {
		share := types.GroupShare{Label: label, Count: n}
		if total > 0 {
			share.Percent = float64(n) / float64(total) * 100
		}
		out = append(out, share)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ParseAge reads a single-year age label. Any label mentioning 90 ("90 and
// over", "90+") counts as 90.
func ParseAge(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if n, err := strconv.Atoi(label); err == nil {
		return n, true
	}
	if strings.Contains(label, "90") {
		return 90, true
	}
	return 0, false
}

func IsAllAges(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), types.AllAges)
}

// SummarizePopulation builds the all-ages series, the 0-15/16-64/65+ bands per
// year and the growth figures for one borough. Rows with unparseable ages are
// ignored.
func SummarizePopulation(borough string, rows []types.PopulationRow) (types.PopulationSummary, error) {
	allAges := make(map[int]float64)
	bands := make(map[int]*types.AgeBandYear)
	for _, r := range rows {
		if IsAllAges(r.Age) {
			allAges[r.Year] += r.Population
			continue
		}
		age, ok := ParseAge(r.Age)
		if !ok {
			continue
		}
		b := bands[r.Year]
		if b == nil {
			b = &types.AgeBandYear{Year: r.Year}
			bands[r.Year] = b
		}
		switch {
		case age <= 15:
			b.Young += r.Population
		case age <= 64:
			b.Working += r.Population
		default:
			b.Older += r.Population
		}
	}
	if len(allAges) == 0 && len(bands) == 0 {
		return types.PopulationSummary{}, fmt.Errorf("population for %q: %w", borough, ErrNoData)
	}

	s := types.PopulationSummary{Borough: borough}
	for _, y := range sortedYears(allAges) {
		s.AllAges = append(s.AllAges, types.YearValue{Year: y, Population: allAges[y]})
	}
	for _, y := range sortedYears(bands) {
		s.Bands = append(s.Bands, *bands[y])
	}
	if n := len(s.AllAges); n > 0 {
		s.LatestYear = s.AllAges[n-1].Year
		s.LatestTotal = s.AllAges[n-1].Population
	}
	s.AverageGrowthPct, s.HasGrowth = AverageGrowth(s.AllAges)
	return s, nil
}

// AverageGrowth is the mean of year-on-year percentage changes. Steps from a
// zero population are skipped.
func AverageGrowth(series []types.YearValue) (float64, bool) {
	var sum float64
	n := 0
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Population
		if prev == 0 {
			continue
		}
		sum += (series[i].Population - prev) / prev * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// AllAgesByArea splits all-ages rows into one series per area in first-seen order.
func AllAgesByArea(rows []types.PopulationRow) []types.PopulationSummary {
	index := make(map[string]int)
	var out []types.PopulationSummary
	for _, r := range rows {
		if !IsAllAges(r.Age) {
			continue
		}
		i, ok := index[r.Area]
		if !ok {
			i = len(out)
			index[r.Area] = i
			out = append(out, types.PopulationSummary{Borough: r.Area})
		}
		out[i].AllAges = append(out[i].AllAges, types.YearValue{Year: r.Year, Population: r.Population})
	}
	for i := range out {
		s := &out[i]
		sort.Slice(s.AllAges, func(a, b int) bool { return s.AllAges[a].Year < s.AllAges[b].Year })
		last := s.AllAges[len(s.AllAges)-1]
		s.LatestYear, s.LatestTotal = last.Year, last.Population
		s.AverageGrowthPct, s.HasGrowth = AverageGrowth(s.AllAges)
	}
	return out
}

func sortedYears[V any](m map[int]V) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
