package usecase

import (
	"context"
	"errors"
	"fmt"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
)

const maxSeriesBars = 50000

// SeriesUseCase provides read access to stored bars.
type SeriesUseCase struct {
	provider domrepo.SeriesProvider
	catalog  domrepo.SeriesCatalog
}

func NewSeriesUseCase(provider domrepo.SeriesProvider, catalog domrepo.SeriesCatalog) *SeriesUseCase {
	return &SeriesUseCase{provider: provider, catalog: catalog}
}

type GetSeriesParams struct {
	Source   string
	Interval domrepo.Interval
	Count    int
}

type GetSeriesResult struct {
	Source   string       `json:"source"`
	Interval string       `json:"interval"`
	Count    int          `json:"count"`
	Bars     []models.Bar `json:"bars"`
}

func (uc *SeriesUseCase) GetSeries(ctx context.Context, p GetSeriesParams) (*GetSeriesResult, error) {
	if p.Source == "" {
		return nil, fmt.Errorf("source required")
	}
	if p.Count <= 0 {
		p.Count = 500
	}
	if p.Count > maxSeriesBars {
		p.Count = maxSeriesBars
	}
	if !domrepo.IsValidInterval(p.Interval) {
		p.Interval = domrepo.DefaultInterval()
	}

	bars, err := uc.provider.GetSeries(ctx, p.Source, p.Interval, p.Count)
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return &GetSeriesResult{
		Source:   p.Source,
		Interval: string(p.Interval),
		Count:    len(bars),
		Bars:     bars,
	}, nil
}

var ErrCatalogUnsupported = errors.New("series catalog not supported by provider")

func (uc *SeriesUseCase) ListSeries(ctx context.Context) ([]models.SeriesKey, error) {
	if uc.catalog == nil {
		return nil, ErrCatalogUnsupported
	}
	keys, err := uc.catalog.ListSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	if keys == nil {
		keys = []models.SeriesKey{}
	}
	return keys, nil
}
