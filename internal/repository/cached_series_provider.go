package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/pkg/cache"
	applogger "PatternScope/pkg/logger"
)

// CachedSeriesProvider decorates a provider with a read-through cache. Cache
// failures degrade to a direct read. Errors and empty results are not cached.
type CachedSeriesProvider struct {
	next  domrepo.SeriesProvider
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.SeriesProvider = (*CachedSeriesProvider)(nil)

func NewCachedSeriesProvider(next domrepo.SeriesProvider, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedSeriesProvider {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedSeriesProvider{next: next, cache: c, ttl: ttl, l: l}
}

func seriesPrefix(source string, interval domrepo.Interval) string {
	return cache.Key("series", strings.ToUpper(source), interval) + ":"
}

func (p *CachedSeriesProvider) GetSeries(ctx context.Context, source string, interval domrepo.Interval, count int) ([]models.Bar, error) {
	key := seriesPrefix(source, interval) + cache.Key("last", count)
	return p.readThrough(ctx, key, func() ([]models.Bar, error) {
		return p.next.GetSeries(ctx, source, interval, count)
	})
}

func (p *CachedSeriesProvider) GetSeriesAfter(ctx context.Context, source string, interval domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	key := seriesPrefix(source, interval) + cache.Key("after", ts.Unix(), count)
	return p.readThrough(ctx, key, func() ([]models.Bar, error) {
		return p.next.GetSeriesAfter(ctx, source, interval, ts, count)
	})
}

// ListSeries delegates to the wrapped provider when it is a catalog.
func (p *CachedSeriesProvider) ListSeries(ctx context.Context) ([]models.SeriesKey, error) {
	cat, ok := p.next.(domrepo.SeriesCatalog)
	if !ok {
		return nil, errors.New("series catalog not supported by provider")
	}
	return cat.ListSeries(ctx)
}

// Invalidate drops every cached read of a series.
func (p *CachedSeriesProvider) Invalidate(ctx context.Context, source string, interval domrepo.Interval) error {
	return p.cache.DeleteByPrefix(ctx, seriesPrefix(source, interval))
}

func (p *CachedSeriesProvider) readThrough(ctx context.Context, key string, load func() ([]models.Bar, error)) ([]models.Bar, error) {
	bars, err := cache.GetJSON[[]models.Bar](ctx, p.cache, key)
	switch {
	case err == nil:
		return bars, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		p.l.Warn("series cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	bars, err = load()
	if err != nil || len(bars) == 0 {
		return bars, err
	}
	if err := cache.SetJSON(ctx, p.cache, key, bars, p.ttl); err != nil {
		p.l.Warn("series cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return bars, nil
}
