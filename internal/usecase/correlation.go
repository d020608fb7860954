package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/services/analytics"
)

const (
	defaultCorrelationCount = 1000
	defaultRankCount        = 5000
	rankConcurrency         = 8
)

// CorrelationUseCase correlates the log returns of series.
type CorrelationUseCase struct {
	provider domrepo.SeriesProvider
	catalog  domrepo.SeriesCatalog
}

// NewCorrelationUseCase builds the use case. catalog may be nil, in which case
// Rank reports ErrCatalogUnsupported.
func NewCorrelationUseCase(provider domrepo.SeriesProvider, catalog domrepo.SeriesCatalog) *CorrelationUseCase {
	return &CorrelationUseCase{provider: provider, catalog: catalog}
}

type CorrelationParams struct {
	Source   string
	Against  string
	Interval domrepo.Interval
	Count    int
	Window   int
}

func (uc *CorrelationUseCase) Correlate(ctx context.Context, p CorrelationParams) (*models.CorrelationResult, error) {
	if p.Count <= 0 {
		p.Count = defaultCorrelationCount
	}
	var a, b []models.Bar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = uc.provider.GetSeries(gctx, p.Source, p.Interval, p.Count)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Source, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		b, err = uc.provider.GetSeries(gctx, p.Against, p.Interval, p.Count)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Against, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res, err := analytics.Correlate(a, b, p.Window)
	if err != nil {
		return nil, fmt.Errorf("%s vs %s: %d common returns: %w", p.Source, p.Against, res.Overlap, err)
	}
	res.Source = p.Source
	res.Against = p.Against
	res.Interval = string(p.Interval)
	return &res, nil
}

type RankParams struct {
	Source   string
	Interval domrepo.Interval
	// Intervals to rank; empty means Interval only.
	Intervals   []domrepo.Interval
	Count       int
	Top         int
	MinAbsCoeff float64
}

// Rank correlates Source against every catalog series on the requested
// intervals and orders the results by |coefficient|, strongest first. The
// reference is loaded once per interval. Series that cannot be fetched or
// share too little history are listed in Skipped.
func (uc *CorrelationUseCase) Rank(ctx context.Context, p RankParams) (*models.CorrelationRanking, error) {
	if uc.catalog == nil {
		return nil, ErrCatalogUnsupported
	}
	if p.Count <= 0 {
		p.Count = defaultRankCount
	}
	if len(p.Intervals) == 0 {
		p.Intervals = []domrepo.Interval{p.Interval}
	}
	wanted := make(map[string]bool, len(p.Intervals))
	for _, iv := range p.Intervals {
		wanted[string(iv)] = true
	}

	keys, err := uc.catalog.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	var targets []models.SeriesKey
	for _, k := range keys {
		if k.Source != p.Source && wanted[k.Interval] {
			targets = append(targets, k)
		}
	}

	refs := make(map[string][]models.Bar, len(wanted))
	for iv := range wanted {
		bars, err := uc.provider.GetSeries(ctx, p.Source, domrepo.Interval(iv), p.Count)
		switch {
		case errors.Is(err, domrepo.ErrNoData):
			continue
		case err != nil:
			return nil, fmt.Errorf("%s@%s: %w", p.Source, iv, err)
		}
		refs[iv] = bars
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%s: %w", p.Source, domrepo.ErrNoData)
	}

	results := make([]*models.CorrelationResult, len(targets))
	reasons := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rankConcurrency)
	for i, k := range targets {
		ref, ok := refs[k.Interval]
		if !ok {
			reasons[i] = models.SkipNoData
			continue
		}
		g.Go(func() error {
			bars, err := uc.provider.GetSeries(gctx, k.Source, domrepo.Interval(k.Interval), p.Count)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				reasons[i] = models.SkipNoData
				return nil
			}
			res, err := analytics.Correlate(ref, bars, 0)
			if err != nil {
				reasons[i] = models.SkipInsufficientData
				return nil
			}
			res.Source = p.Source
			res.Against = k.Source
			res.Interval = k.Interval
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &models.CorrelationRanking{Source: p.Source, Interval: string(p.Interval), Results: []models.CorrelationResult{}}
	for i, res := range results {
		switch {
		case res == nil:
			out.Skipped = append(out.Skipped, models.RankingSkip{Series: targets[i], Reason: reasons[i]})
		case math.Abs(res.Coefficient) >= p.MinAbsCoeff:
			out.Results = append(out.Results, *res)
		}
	}
	sort.SliceStable(out.Results, func(i, j int) bool {
		return math.Abs(out.Results[i].Coefficient) > math.Abs(out.Results[j].Coefficient)
	})
	if p.Top > 0 && len(out.Results) > p.Top {
		out.Results = out.Results[:p.Top]
	}
	return out, nil
}
