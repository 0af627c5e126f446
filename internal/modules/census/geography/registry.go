// Package geography maps stations to their wards and names the comparison areas and
// datasets the dashboard can query.
package geography

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

var (
	ErrUnknownStation = errors.New("unknown station")
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrUnknownArea    = errors.New("unknown comparison area")
)

type file struct {
	Stations        []types.Station        `yaml:"stations"`
	ComparisonAreas []types.ComparisonArea `yaml:"comparison_areas"`
	Boroughs        []string               `yaml:"boroughs"`
	Datasets        []types.DatasetSpec    `yaml:"datasets"`
}

// Registry is immutable after Load.
type Registry struct {
	stations []types.Station
	areas    []types.ComparisonArea
	boroughs []string
	datasets []types.DatasetSpec

	stationIdx map[string]int
	areaIdx    map[string]int
	datasetIdx map[string]int
}

// Default returns the registry embedded in the binary.
func Default() (*Registry, error) {
	return Parse(defaultRegistryYAML)
}

// Load reads a registry file. An empty path yields the embedded registry.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return r, nil
}

func Parse(b []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return build(f)
}

func build(f file) (*Registry, error) {
	r := &Registry{
		stations:   f.Stations,
		areas:      f.ComparisonAreas,
		boroughs:   f.Boroughs,
		datasets:   f.Datasets,
		stationIdx: make(map[string]int, len(f.Stations)),
		areaIdx:    make(map[string]int, len(f.ComparisonAreas)),
		datasetIdx: make(map[string]int, len(f.Datasets)),
	}

	for i, s := range f.Stations {
		if s.Name == "" {
			return nil, fmt.Errorf("station %d: name is required", i)
		}
		if _, dup := r.stationIdx[s.Name]; dup {
			return nil, fmt.Errorf("duplicate station %q", s.Name)
		}
		for j, w := range s.Wards {
			if w.Name == "" || w.Code == "" {
				return nil, fmt.Errorf("station %q ward %d: name and code are required", s.Name, j)
			}
		}
		r.stationIdx[s.Name] = i
	}

	for i, a := range f.ComparisonAreas {
		if a.Name == "" || a.Code == "" {
			return nil, fmt.Errorf("comparison area %d: name and code are required", i)
		}
		if a.Name == types.LocalStudyArea {
			return nil, fmt.Errorf("comparison area %q clashes with the local study area", a.Name)
		}
		if _, dup := r.areaIdx[a.Name]; dup {
			return nil, fmt.Errorf("duplicate comparison area %q", a.Name)
		}
		r.areaIdx[a.Name] = i
	}

	for i, d := range f.Datasets {
		if err := validateDataset(d); err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i, err)
		}
		if _, dup := r.datasetIdx[d.ID]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", d.ID)
		}
		r.datasetIdx[d.ID] = i
	}

	return r, nil
}

func validateDataset(d types.DatasetSpec) error {
	if d.ID == "" || d.RemoteID == "" {
		return errors.New("id and remote_id are required")
	}
	if len(d.Categories) == 0 {
		return fmt.Errorf("%s: categories are required", d.ID)
	}
	if len(d.Measures) == 0 {
		return fmt.Errorf("%s: measures are required", d.ID)
	}
	for _, m := range d.Measures {
		if m != types.MeasureCount && m != types.MeasurePercent {
			return fmt.Errorf("%s: unsupported measure %q", d.ID, m)
		}
	}
	seen := make(map[string]bool, len(d.Categories))
	for _, c := range d.Categories {
		if seen[c] {
			return fmt.Errorf("%s: duplicate category %q", d.ID, c)
		}
		seen[c] = true
	}
	for _, g := range d.Groups {
		for _, m := range g.Members {
			if !seen[m] {
				return fmt.Errorf("%s: group %q references unknown category %q", d.ID, g.Label, m)
			}
		}
	}
	return nil
}

func (r *Registry) Station(name string) (types.Station, error) {
	i, ok := r.stationIdx[name]
	if !ok {
		return types.Station{}, fmt.Errorf("%w: %q", ErrUnknownStation, name)
	}
	return r.stations[i], nil
}

func (r *Registry) Stations() []types.Station {
	return append([]types.Station(nil), r.stations...)
}

func (r *Registry) Dataset(id string) (types.DatasetSpec, error) {
	i, ok := r.datasetIdx[id]
	if !ok {
		return types.DatasetSpec{}, fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	return r.datasets[i], nil
}

func (r *Registry) Datasets() []types.DatasetSpec {
	return append([]types.DatasetSpec(nil), r.datasets...)
}

func (r *Registry) ComparisonArea(name string) (types.ComparisonArea, error) {
	i, ok := r.areaIdx[name]
	if !ok {
		return types.ComparisonArea{}, fmt.Errorf("%w: %q", ErrUnknownArea, name)
	}
	return r.areas[i], nil
}

// ComparisonAreas returns the benchmark areas in display order.
func (r *Registry) ComparisonAreas() []types.ComparisonArea {
	return append([]types.ComparisonArea(nil), r.areas...)
}

func (r *Registry) ComparisonAreaNames() []string {
	out := make([]string, len(r.areas))
	for i, a := range r.areas {
		out[i] = a.Name
	}
	return out
}

// Boroughs lists the boroughs covered by the local datasets.
func (r *Registry) Boroughs() []string {
	return append([]string(nil), r.boroughs...)
}
