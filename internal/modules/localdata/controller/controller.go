package controller

import (
	"net/http"

	censustypes "github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/repository"
)

// Geography resolves station wards and the boroughs the local datasets cover.
type Geography interface {
	Station(name string) (censustypes.Station, error)
	Boroughs() []string
}

type LocalDataController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type localDataControllerImpl struct {
	repository repository.LocalDataRepository
	geography  Geography
}

func NewLocalDataController(repository repository.LocalDataRepository, geography Geography) LocalDataController {
	return &localDataControllerImpl{repository: repository, geography: geography}
}

func (c *localDataControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stations/{station}/deprivation", c.handleDeprivation)
	mux.HandleFunc("GET /api/v1/homelessness", c.handleHomelessness)
	mux.HandleFunc("GET /api/v1/crime", c.handleCrimeBoroughs)
	mux.HandleFunc("GET /api/v1/crime/{borough}", c.handleCrime)
	mux.HandleFunc("GET /api/v1/population", c.handlePopulationOverview)
	mux.HandleFunc("GET /api/v1/population/{borough}", c.handlePopulation)
}
