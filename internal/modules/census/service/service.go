package service

import (
	"context"
	"log/slog"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/aggregate"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/cache"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/fetcher"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/geography"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

// Fetcher is satisfied by *fetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (fetcher.RawResponse, error)
}

// Normalizer is satisfied by *normalize.Normalizer.
type Normalizer interface {
	Normalize(ds types.DatasetSpec, raw fetcher.RawResponse) (types.CategoryRecord, error)
}

// Stats reports both cache layers.
type Stats struct {
	Records types.CacheStats `json:"records"`
	Tables  types.CacheStats `json:"tables"`
}

// CensusService is the surface the dashboard reads census tables through.
type CensusService interface {
	Registry() *geography.Registry
	BuildComparisonTable(ctx context.Context, station, dataset string) (types.ComparisonTable, error)
	// BuildBroadTable regroups the comparison table by the dataset's groups; ok is false
	// for datasets without groups.
	BuildBroadTable(ctx context.Context, station, dataset string) (table types.ComparisonTable, ok bool, err error)
	LocalStudyArea(ctx context.Context, station, dataset string) (types.CategoryRecord, error)
	InvalidateAll()
	Stats() Stats
}

type censusServiceImpl struct {
	registry   *geography.Registry
	fetcher    Fetcher
	normalizer Normalizer
	aggregator *aggregate.Aggregator
	records    *cache.Cache[types.CategoryRecord]
	tables     *cache.Cache[types.ComparisonTable]
	logger     *slog.Logger
}

type Options struct {
	CacheCapacity int
	CacheOptions  []cache.Option
	Logger        *slog.Logger
}

func NewCensusService(registry *geography.Registry, f Fetcher, n Normalizer, opts Options) CensusService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheOpts := append([]cache.Option{cache.WithCapacity(opts.CacheCapacity)}, opts.CacheOptions...)

	s := &censusServiceImpl{
		registry:   registry,
		fetcher:    f,
		normalizer: n,
		records:    cache.New[types.CategoryRecord](cacheOpts...),
		tables:     cache.New[types.ComparisonTable](cacheOpts...),
		logger:     logger,
	}
	s.aggregator = aggregate.New(aggregate.RecordSourceFunc(s.record))
	return s
}

func (s *censusServiceImpl) Registry() *geography.Registry {
	return s.registry
}

// record fetches and normalizes one geography through the record cache.
func (s *censusServiceImpl) record(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (types.CategoryRecord, error) {
	key := cache.Key{Dataset: ds.ID, Subject: string(code)}
	return s.records.GetOrCompute(ctx, key, func(ctx context.Context) (types.CategoryRecord, error) {
		raw, err := s.fetcher.Fetch(ctx, ds, code)
		if err != nil {
			return types.CategoryRecord{}, err
		}
		return s.normalizer.Normalize(ds, raw)
	})
}

func (s *censusServiceImpl) BuildComparisonTable(ctx context.Context, stationName, datasetID string) (types.ComparisonTable, error) {
	station, ds, err := s.lookup(stationName, datasetID)
	if err != nil {
		return types.ComparisonTable{}, err
	}

	key := cache.Key{Dataset: ds.ID, Subject: station.Name}
	table, err := s.tables.GetOrCompute(ctx, key, func(ctx context.Context) (types.ComparisonTable, error) {
		return s.aggregator.BuildComparisonTable(ctx, station, ds, s.registry.ComparisonAreas())
	})
	if err != nil {
		s.logger.Debug("comparison table failed", "station", station.Name, "dataset", ds.ID, "error", err)
		return types.ComparisonTable{}, err
	}
	return table, nil
}

func (s *censusServiceImpl) BuildBroadTable(ctx context.Context, stationName, datasetID string) (types.ComparisonTable, bool, error) {
	ds, err := s.registry.Dataset(datasetID)
	if err != nil {
		return types.ComparisonTable{}, false, err
	}
	if len(ds.Groups) == 0 {
		return types.ComparisonTable{}, false, nil
	}
	table, err := s.BuildComparisonTable(ctx, stationName, datasetID)
	if err != nil {
		return types.ComparisonTable{}, false, err
	}
	return aggregate.RegroupTable(table, ds.Groups), true, nil
}

func (s *censusServiceImpl) LocalStudyArea(ctx context.Context, stationName, datasetID string) (types.CategoryRecord, error) {
	station, ds, err := s.lookup(stationName, datasetID)
	if err != nil {
		return types.CategoryRecord{}, err
	}
	return s.aggregator.BuildLocalStudyArea(ctx, station, ds)
}

func (s *censusServiceImpl) InvalidateAll() {
	s.records.InvalidateAll()
	s.tables.InvalidateAll()
	s.logger.Info("census caches invalidated")
}

func (s *censusServiceImpl) Stats() Stats {
	return Stats{Records: s.records.Stats(), Tables: s.tables.Stats()}
}

func (s *censusServiceImpl) lookup(stationName, datasetID string) (types.Station, types.DatasetSpec, error) {
	station, err := s.registry.Station(stationName)
	if err != nil {
		return types.Station{}, types.DatasetSpec{}, err
	}
	ds, err := s.registry.Dataset(datasetID)
	if err != nil {
		return types.Station{}, types.DatasetSpec{}, err
	}
	return station, ds, nil
}
