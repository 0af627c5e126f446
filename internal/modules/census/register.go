// Package census wires the census comparison feature: registry, NOMIS fetcher,
// normalizer, caches and the HTTP controller.
package census

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/controller"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/fetcher"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/geography"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/normalize"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/service"
)

// LoadRegistry reads GEOGRAPHY_FILE when set, else the embedded registry.
func LoadRegistry(cfg config.Config) (*geography.Registry, error) {
	if cfg.GeographyFile == "" {
		return geography.Default()
	}
	return geography.Load(cfg.GeographyFile)
}

func NewService(cfg config.Config, logger *slog.Logger) (service.CensusService, error) {
	registry, err := LoadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("load geography registry: %w", err)
	}
	f, err := fetcher.New(cfg.NomisBaseURL,
		fetcher.WithClient(&http.Client{Timeout: cfg.NomisTimeout}),
		fetcher.WithBackoff(fetcher.Backoff{
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseDelay:   cfg.FetchBaseDelay,
			MaxDelay:    cfg.FetchMaxDelay,
		}),
		fetcher.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	svc := service.NewCensusService(registry, f, normalize.New(logger), service.Options{
		CacheCapacity: cfg.CacheCapacity,
		Logger:        logger,
	})
	return svc, nil
}

func RegisterFeature(mux *http.ServeMux, svc service.CensusService) {
	censusController := controller.NewCensusController(svc)
	censusController.RegisterRoutes(mux)
}
