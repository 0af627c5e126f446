// Package localdata serves the deprivation, homelessness, crime and
// population datasets held in the local SQLite store.
package localdata

import (
	"database/sql"
	"net/http"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/controller"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/repository"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, geography controller.Geography) {
	localDataRepository := repository.NewRepository(db)
	localDataController := controller.NewLocalDataController(localDataRepository, geography)
	localDataController.RegisterRoutes(mux)
}
