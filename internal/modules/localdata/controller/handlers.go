package controller

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/geography"
	censustypes "github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/summary"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/utils"
)

// LondonArea is the homelessness series for the whole of London.
const LondonArea = "Greater London Authority"

type deprivationResponse struct {
	Station   string                     `json:"station"`
	Wards     []string                   `json:"wards"`
	MatchMode summary.MatchMode          `json:"matchMode"`
	LSOAs     []types.LSOA               `json:"lsoas"`
	Quintiles censustypes.CategoryRecord `json:"quintiles"`
}

type homelessnessResponse struct {
	Boroughs []types.HomelessnessStats `json:"boroughs"`
	London   *types.HomelessnessStats  `json:"london,omitempty"`
}

func (c *localDataControllerImpl) handleDeprivation(w http.ResponseWriter, r *http.Request) {
	station, err := c.geography.Station(r.PathValue("station"))
	if errors.Is(err, geography.ErrUnknownStation) {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("deprivation: station lookup failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to resolve station")
		return
	}

	all, err := c.repository.ListLSOAs(r.Context())
	if err != nil {
		slog.Error("deprivation: list lsoas failed", "station", station.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load deprivation data")
		return
	}
	wards := make([]string, len(station.Wards))
	for i, ward := range station.Wards {
		wards[i] = ward.Name
	}
	lsoas, mode := summary.MatchLSOAs(all, wards)
	if len(lsoas) == 0 {
		slog.Warn("deprivation: no lsoas matched station wards", "station", station.Name, "wards", wards)
		utils.WriteError(w, http.StatusNotFound, "no LSOAs found for the Local Study Area wards")
		return
	}
	quintiles, err := summary.DeprivationQuintiles(lsoas)
	if err != nil {
		slog.Error("deprivation: quintiles failed", "station", station.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "invalid deprivation data")
		return
	}
	utils.WriteJSON(w, http.StatusOK, deprivationResponse{
		Station:   station.Name,
		Wards:     wards,
		MatchMode: mode,
		LSOAs:     lsoas,
		Quintiles: quintiles,
	})
}

func (c *localDataControllerImpl) handleHomelessness(w http.ResponseWriter, r *http.Request) {
	points, err := c.repository.ListHomelessness(r.Context())
	if err != nil {
		slog.Error("homelessness: list failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load homelessness data")
		return
	}
	byArea := make(map[string]types.HomelessnessStats)
	for _, s := range summary.HomelessnessByArea(points) {
		byArea[s.Area] = s
	}
	resp := homelessnessResponse{Boroughs: []types.HomelessnessStats{}}
	for _, b := range c.geography.Boroughs() {
		if s, ok := byArea[b]; ok {
			resp.Boroughs = append(resp.Boroughs, s)
		}
	}
	if s, ok := byArea[LondonArea]; ok {
		resp.London = &s
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *localDataControllerImpl) handleCrimeBoroughs(w http.ResponseWriter, r *http.Request) {
	available, err := c.repository.ListCrimeBoroughs(r.Context())
	if err != nil {
		slog.Error("crime: list boroughs failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load crime data")
		return
	}
	has := make(map[string]bool, len(available))
	for _, b := range available {
		has[b] = true
	}
	out := []string{}
	for _, b := range c.geography.Boroughs() {
		if has[b] {
			out = append(out, b)
		}
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *localDataControllerImpl) handleCrime(w http.ResponseWriter, r *http.Request) {
	borough, ok := c.borough(w, r)
	if !ok {
		return
	}
	records, err := c.repository.ListCrime(r.Context(), borough)
	if err != nil {
		slog.Error("crime: list failed", "borough", borough, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load crime data")
		return
	}
	s, err := summary.SummarizeCrime(borough, records)
	if errors.Is(err, summary.ErrNoData) {
		utils.WriteError(w, http.StatusNotFound, "no crime data for "+borough)
		return
	}
	if err != nil {
		slog.Error("crime: summary failed", "borough", borough, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to summarise crime data")
		return
	}
	utils.WriteJSON(w, http.StatusOK, s)
}

func (c *localDataControllerImpl) handlePopulation(w http.ResponseWriter, r *http.Request) {
	borough, ok := c.borough(w, r)
	if !ok {
		return
	}
	rows, err := c.repository.ListPopulation(r.Context(), borough)
	if err != nil {
		slog.Error("population: list failed", "borough", borough, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load population data")
		return
	}
	s, err := summary.SummarizePopulation(borough, rows)
	if errors.Is(err, summary.ErrNoData) {
		utils.WriteError(w, http.StatusNotFound, "no population projections for "+borough)
		return
	}
	if err != nil {
		slog.Error("population: summary failed", "borough", borough, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to summarise population data")
		return
	}
	utils.WriteJSON(w, http.StatusOK, s)
}

func (c *localDataControllerImpl) handlePopulationOverview(w http.ResponseWriter, r *http.Request) {
	rows, err := c.repository.ListPopulationAllAges(r.Context())
	if err != nil {
		slog.Error("population: list all ages failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load population data")
		return
	}
	byArea := make(map[string]types.PopulationSummary)
	for _, s := range summary.AllAgesByArea(rows) {
		byArea[s.Borough] = s
	}
	out := []types.PopulationSummary{}
	for _, b := range c.geography.Boroughs() {
		if s, ok := byArea[b]; ok {
			out = append(out, s)
		}
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// borough resolves the {borough} path value against the covered boroughs,
// ignoring case. It writes a 404 and returns false when there is no match.
func (c *localDataControllerImpl) borough(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.PathValue("borough"))
	for _, b := range c.geography.Boroughs() {
		if strings.EqualFold(b, name) {
			return b, true
		}
	}
	utils.WriteError(w, http.StatusNotFound, "unknown borough: "+name)
	return "", false
}
