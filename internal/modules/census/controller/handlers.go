package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/views"
	"github.com/hbl-templ/bakerloo-line-extension/internal/utils"
)

type datasetSummary struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Categories []string              `json:"categories"`
	Groups     []types.CategoryGroup `json:"groups,omitempty"`
}

type comparisonResponse struct {
	Table types.ComparisonTable  `json:"table"`
	Broad *types.ComparisonTable `json:"broad,omitempty"`
}

type lsaResponse struct {
	Station string               `json:"station"`
	Area    string               `json:"area"`
	Record  types.CategoryRecord `json:"record"`
}

func (c *censusControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	reg := c.service.Registry()
	stations := reg.Stations()
	datasets := reg.Datasets()

	data := views.DashboardData{
		SelectedStation: r.URL.Query().Get("station"),
		SelectedDataset: r.URL.Query().Get("dataset"),
	}
	for _, s := range stations {
		data.Stations = append(data.Stations, views.StationOption{Name: s.Name})
	}
	for _, d := range datasets {
		data.Datasets = append(data.Datasets, views.DatasetOption{ID: d.ID, Title: d.Title})
	}
	if data.SelectedStation == "" && len(stations) > 0 {
		data.SelectedStation = stations[0].Name
	}
	if data.SelectedDataset == "" && len(datasets) > 0 {
		data.SelectedDataset = datasets[0].ID
	}
	if data.SelectedStation != "" && data.SelectedDataset != "" {
		data.Table = c.tableView(r, data.SelectedStation, data.SelectedDataset)
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *censusControllerImpl) handleTablePartial(w http.ResponseWriter, r *http.Request) {
	view := c.tableView(r, r.PathValue("station"), r.PathValue("dataset"))

	var buf bytes.Buffer
	if err := views.RenderTablePartial(&buf, view); err != nil {
		slog.Error("table partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

// tableView builds the comparison view, or a view carrying the error message.
func (c *censusControllerImpl) tableView(r *http.Request, station, dataset string) *views.TableView {
	title := dataset
	if ds, err := c.service.Registry().Dataset(dataset); err == nil && ds.Title != "" {
		title = ds.Title
	}

	table, err := c.service.BuildComparisonTable(r.Context(), station, dataset)
	if err != nil {
		status, msg := statusFor(err)
		slog.Error("comparison table failed", "station", station, "dataset", dataset, "status", status, "error", err)
		return &views.TableView{Station: station, Dataset: dataset, Title: title, Error: msg}
	}
	view := views.NewTableView(title, table)

	broad, ok, err := c.service.BuildBroadTable(r.Context(), station, dataset)
	if err != nil {
		slog.Error("broad table failed", "station", station, "dataset", dataset, "error", err)
	} else if ok {
		view.Broad = views.NewTableView(title, broad)
	}
	return view
}

func (c *censusControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Registry().Stations())
}

func (c *censusControllerImpl) handleDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := c.service.Registry().Datasets()
	out := make([]datasetSummary, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, datasetSummary{ID: d.ID, Title: d.Title, Categories: d.Categories, Groups: d.Groups})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *censusControllerImpl) handleComparisonTable(w http.ResponseWriter, r *http.Request) {
	station, dataset := r.PathValue("station"), r.PathValue("dataset")

	table, err := c.service.BuildComparisonTable(r.Context(), station, dataset)
	if err != nil {
		c.writeServiceError(w, "comparison table", station, dataset, err)
		return
	}
	resp := comparisonResponse{Table: table}
	broad, ok, err := c.service.BuildBroadTable(r.Context(), station, dataset)
	if err != nil {
		c.writeServiceError(w, "broad table", station, dataset, err)
		return
	}
	if ok {
		resp.Broad = &broad
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *censusControllerImpl) handleLocalStudyArea(w http.ResponseWriter, r *http.Request) {
	station, dataset := r.PathValue("station"), r.PathValue("dataset")

	rec, err := c.service.LocalStudyArea(r.Context(), station, dataset)
	if err != nil {
		c.writeServiceError(w, "local study area", station, dataset, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, lsaResponse{Station: station, Area: types.LocalStudyArea, Record: rec})
}

func (c *censusControllerImpl) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Stats())
}

func (c *censusControllerImpl) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	c.service.InvalidateAll()
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (c *censusControllerImpl) writeServiceError(w http.ResponseWriter, op, station, dataset string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "station", station, "dataset", dataset, "status", status, "error", err)
	} else {
		slog.Warn(op+" rejected", "station", station, "dataset", dataset, "status", status, "error", err)
	}
	utils.WriteError(w, status, msg)
}
