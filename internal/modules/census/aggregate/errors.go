package aggregate

import (
	"fmt"
	"strings"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

// InvalidStation is returned for a station with no wards.
type InvalidStation struct {
	Station string
}

func (e *InvalidStation) Error() string {
	return fmt.Sprintf("station %q has no wards", e.Station)
}

// SchemaMismatch is returned when a record's category labels differ from the dataset schema.
type SchemaMismatch struct {
	Dataset string
	Area    string
	Want    []string
	Got     []string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("dataset %s area %q: categories [%s] do not match schema [%s]",
		e.Dataset, e.Area, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// PartialDataError is returned when any ward of a station could not be read.
type PartialDataError struct {
	Station string
	Ward    types.Ward
	Err     error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("station %q ward %q (%s): %v", e.Station, e.Ward.Name, e.Ward.Code, e.Err)
}

func (e *PartialDataError) Unwrap() error { return e.Err }
