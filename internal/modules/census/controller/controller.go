package controller

import (
	"net/http"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/service"
)

type CensusController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type censusControllerImpl struct {
	service service.CensusService
}

func NewCensusController(service service.CensusService) CensusController {
	return &censusControllerImpl{service: service}
}

func (c *censusControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /stations/{station}/datasets/{dataset}", c.handleTablePartial)

	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/datasets", c.handleDatasets)
	mux.HandleFunc("GET /api/v1/stations/{station}/datasets/{dataset}", c.handleComparisonTable)
	mux.HandleFunc("GET /api/v1/stations/{station}/lsa/{dataset}", c.handleLocalStudyArea)
	mux.HandleFunc("GET /api/v1/cache", c.handleCacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", c.handleInvalidate)
}
