package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type StationOption struct {
	Name string
}

type DatasetOption struct {
	ID    string
	Title string
}

type DashboardData struct {
	Stations        []StationOption
	Datasets        []DatasetOption
	SelectedStation string
	SelectedDataset string
	Table           *TableView
}

type TableRow struct {
	Area  string
	Cells []string
}

// TableView is a comparison table formatted for display. Error replaces the table when set.
type TableView struct {
	Station string
	Dataset string
	Title   string
	Labels  []string
	Rows    []TableRow
	Broad   *TableView
	Error   string
}

// NewTableView formats every percentage to one decimal place.
func NewTableView(title string, table types.ComparisonTable) *TableView {
	v := &TableView{
		Station: table.Station,
		Dataset: table.Dataset,
		Title:   title,
		Labels:  table.Labels,
		Rows:    make([]TableRow, len(table.Rows)),
	}
	for i, row := range table.Rows {
		cells := make([]string, len(row.Record.Categories))
		for j, c := range row.Record.Categories {
			cells[j] = FormatPercent(c.Percent)
		}
		v.Rows[i] = TableRow{Area: row.Area, Cells: cells}
	}
	return v
}

func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderTablePartial executes only the comparison table fragment into w.
func RenderTablePartial(w io.Writer, data *TableView) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "table", data)
}
