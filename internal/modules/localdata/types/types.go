package types

// LSOA is one Lower Layer Super Output Area with its Index of Multiple
// Deprivation rank and deciles. Decile 1 is the most deprived tenth.
type LSOA struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	Ward              string `json:"ward"`
	Borough           string `json:"borough"`
	IMDRank           int    `json:"imdRank"`
	IMDDecile         int    `json:"imdDecile"`
	IncomeDecile      int    `json:"incomeDecile,omitempty"`
	EmploymentDecile  int    `json:"employmentDecile,omitempty"`
	EducationDecile   int    `json:"educationDecile,omitempty"`
	HealthDecile      int    `json:"healthDecile,omitempty"`
	CrimeDecile       int    `json:"crimeDecile,omitempty"`
	BarriersDecile    int    `json:"barriersDecile,omitempty"`
	EnvironmentDecile int    `json:"environmentDecile,omitempty"`
}

// HomelessnessPoint is the number of people seen rough sleeping in one area and quarter.
type HomelessnessPoint struct {
	Area    string  `json:"area"`
	Quarter string  `json:"quarter"`
	People  float64 `json:"people"`
}

type HomelessnessStats struct {
	Area    string              `json:"area"`
	Mean    float64             `json:"mean"`
	Min     float64             `json:"min"`
	Max     float64             `json:"max"`
	Series  []HomelessnessPoint `json:"series"`
}

// CrimeRecord is an offence count for one borough, month (YYYY-MM) and offence subgroup.
type CrimeRecord struct {
	Borough  string `json:"borough"`
	Month    string `json:"month"`
	Group    string `json:"group"`
	Subgroup string `json:"subgroup"`
	Count    int    `json:"count"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type GroupShare struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type CrimeSummary struct {
	Borough        string                  `json:"borough"`
	Total          int                     `json:"total"`
	TopGroup       GroupShare              `json:"topGroup"`
	LatestMonth    string                  `json:"latestMonth"`
	Monthly        []MonthCount            `json:"monthly"`
	AverageMonthly float64                 `json:"averageMonthly"`
	Peak           MonthCount              `json:"peak"`
	Lowest         MonthCount              `json:"lowest"`
	TopGroups      []GroupShare            `json:"topGroups"`
	Subgroups      map[string][]GroupShare `json:"subgroups"`
}

// AllAges is the age label carrying the whole-population projection.
const AllAges = "All ages"

// PopulationRow is a projected population for one area, single-year age label and year.
type PopulationRow struct {
	AreaCode   string  `json:"areaCode"`
	Area       string  `json:"area"`
	Age        string  `json:"age"`
	Year       int     `json:"year"`
	Population float64 `json:"population"`
}

type YearValue struct {
	Year       int     `json:"year"`
	Population float64 `json:"population"`
}

type AgeBandYear struct {
	Year    int     `json:"year"`
	Young   float64 `json:"age0to15"`
	Working float64 `json:"age16to64"`
	Older   float64 `json:"age65plus"`
}

type PopulationSummary struct {
	Borough string        `json:"borough"`
	AllAges []YearValue   `json:"allAges"`
	Bands   []AgeBandYear `json:"bands"`
	// AverageGrowthPct is the mean year-on-year change of the all-ages series.
	AverageGrowthPct float64 `json:"averageGrowthPct"`
	HasGrowth        bool    `json:"hasGrowth"`
	LatestYear       int     `json:"latestYear"`
	LatestTotal      float64 `json:"latestTotal"`
}
