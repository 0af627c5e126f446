package geography

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if got := len(r.Stations()); got != 9 {
		t.Errorf("stations = %d; want 9", got)
	}
	if diff := cmp.Diff([]string{"Southwark", "London", "England"}, r.ComparisonAreaNames()); diff != "" {
		t.Errorf("comparison areas mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Lambeth", "Southwark", "Lewisham", "Greenwich"}, r.Boroughs()); diff != "" {
		t.Errorf("boroughs mismatch (-want +got):\n%s", diff)
	}

	okr, err := r.Station("Old Kent Road")
	if err != nil {
		t.Fatalf("Station(Old Kent Road) error = %v", err)
	}
	if len(okr.Wards) != 4 || okr.Wards[0].Code != "641732399" {
		t.Errorf("Old Kent Road wards = %+v", okr.Wards)
	}

	age, err := r.Dataset("age")
	if err != nil {
		t.Fatalf("Dataset(age) error = %v", err)
	}
	if len(age.Categories) != 11 || !age.HasTotal {
		t.Errorf("age dataset = %+v", age)
	}
	if len(age.Groups) != 3 {
		t.Errorf("age groups = %d; want 3", len(age.Groups))
	}

	pop, err := r.Dataset("population")
	if err != nil {
		t.Fatalf("Dataset(population) error = %v", err)
	}
	if got := pop.Params["c2021_restype_3"]; got != "0...2" {
		t.Errorf("population restype = %q; want 0...2", got)
	}
	if len(pop.Categories) != 2 || !pop.HasTotal {
		t.Errorf("population dataset = %+v; want Total plus 2 categories", pop)
	}
}

func TestLookups_Unknown(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if _, err := r.Station("Paddington"); !errors.Is(err, ErrUnknownStation) {
		t.Errorf("Station() error = %v; want ErrUnknownStation", err)
	}
	if _, err := r.Dataset("income"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("Dataset() error = %v; want ErrUnknownDataset", err)
	}
	if _, err := r.ComparisonArea("Wales"); !errors.Is(err, ErrUnknownArea) {
		t.Errorf("ComparisonArea() error = %v; want ErrUnknownArea", err)
	}
}

func TestStations_ReturnsCopy(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	s := r.Stations()
	s[0].Name = "mutated"
	if r.Stations()[0].Name == "mutated" {
		t.Fatal("Stations() exposed internal slice")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "duplicate station",
			yaml:    "stations:\n  - name: A\n  - name: A\n",
			wantErr: "duplicate station",
		},
		{
			name:    "ward without code",
			yaml:    "stations:\n  - name: A\n    wards:\n      - { name: W }\n",
			wantErr: "name and code are required",
		},
		{
			name:    "area named like the LSA",
			yaml:    "comparison_areas:\n  - { name: Local Study Area, code: \"1\" }\n",
			wantErr: "clashes",
		},
		{
			name:    "dataset without categories",
			yaml:    "datasets:\n  - { id: x, remote_id: NM_1, measures: [\"20301\"] }\n",
			wantErr: "categories are required",
		},
		{
			name:    "dataset with unknown measure",
			yaml:    "datasets:\n  - { id: x, remote_id: NM_1, measures: [\"1\"], categories: [a] }\n",
			wantErr: "unsupported measure",
		},
		{
			name:    "duplicate category",
			yaml:    "datasets:\n  - { id: x, remote_id: NM_1, measures: [\"20301\"], categories: [a, a] }\n",
			wantErr: "duplicate category",
		},
		{
			name:    "group with unknown member",
			yaml:    "datasets:\n  - id: x\n    remote_id: NM_1\n    measures: [\"20301\"]\n    categories: [a]\n    groups:\n      - { label: g, members: [b] }\n",
			wantErr: "unknown category",
		},
		{
			name:    "unknown field",
			yaml:    "stationz: []\n",
			wantErr: "decode registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() error = nil; want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q; want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_StationWithoutWards(t *testing.T) {
	r, err := Parse([]byte("stations:\n  - name: Empty\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s, err := r.Station("Empty")
	if err != nil {
		t.Fatalf("Station() error = %v", err)
	}
	if len(s.Wards) != 0 {
		t.Errorf("wards = %d; want 0", len(s.Wards))
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses embedded registry", func(t *testing.T) {
		r, err := Load("  ")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(r.Datasets()) == 0 {
			t.Error("expected embedded datasets")
		}
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.yaml")
		body := "stations:\n  - name: S\n    wards:\n      - { name: W, code: \"G1\" }\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		r, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if _, err := r.Station("S"); err != nil {
			t.Errorf("Station(S) error = %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("Load() error = nil; want error")
		}
	})
}
