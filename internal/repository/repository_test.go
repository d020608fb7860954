package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/pkg/cache"
	xhttp "PatternScope/pkg/http"
)

func makeBars(n int, start time.Time, step time.Duration) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Bar{Time: start.Add(time.Duration(i) * step), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func TestSQLiteSeriesStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSeriesStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetSeries(ctx, "XAGUSD", domrepo.H4, 10)
	assert.ErrorIs(t, err, domrepo.ErrNoData)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	key := models.SeriesKey{Source: "XAGUSD", Interval: "H4"}
	n, err := s.SaveBars(ctx, key, makeBars(10, t0, 4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	last, err := s.GetSeries(ctx, "xagusd", domrepo.H4, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, 107.0, last[0].Close)
	assert.Equal(t, 109.0, last[2].Close)
	assert.True(t, last[2].Time.Equal(t0.Add(36*time.Hour)))

	after, err := s.GetSeriesAfter(ctx, "XAGUSD", domrepo.H4, t0.Add(4*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, 102.0, after[0].Close)

	upd := []models.Bar{{Time: t0, Open: 1, High: 1, Low: 1, Close: 1}}
	_, err = s.SaveBars(ctx, key, upd)
	require.NoError(t, err)
	all, err := s.GetSeries(ctx, "XAGUSD", domrepo.H4, 100)
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Equal(t, 1.0, all[0].Close)

	_, err = s.SaveBars(ctx, models.SeriesKey{Source: "XAUUSD", Interval: "D1"}, makeBars(2, t0, 24*time.Hour))
	require.NoError(t, err)
	keys, err := s.ListSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SeriesKey{{Source: "XAGUSD", Interval: "H4"}, {Source: "XAUUSD", Interval: "D1"}}, keys)
}

type countingProvider struct {
	bars  []models.Bar
	calls int32
	err   error
}

func (p *countingProvider) GetSeries(_ context.Context, _ string, _ domrepo.Interval, count int) ([]models.Bar, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	if count > len(p.bars) {
		count = len(p.bars)
	}
	return p.bars[len(p.bars)-count:], nil
}

func (p *countingProvider) GetSeriesAfter(_ context.Context, _ string, _ domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	atomic.AddInt32(&p.calls, 1)
	var out []models.Bar
	for _, b := range p.bars {
		if b.Time.After(ts) && len(out) < count {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestCachedSeriesProviderHitMiss(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &countingProvider{bars: makeBars(5, t0, time.Hour)}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	p := NewCachedSeriesProvider(next, mc, time.Minute, nil)

	first, err := p.GetSeries(ctx, "XAGUSD", domrepo.H1, 3)
	require.NoError(t, err)
	second, err := p.GetSeries(ctx, "XAGUSD", domrepo.H1, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Equal(t, len(first), len(second))
	assert.True(t, first[0].Time.Equal(second[0].Time))

	_, err = p.GetSeriesAfter(ctx, "XAGUSD", domrepo.H1, t0, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))

	require.NoError(t, p.Invalidate(ctx, "xagusd", domrepo.H1))
	_, err = p.GetSeries(ctx, "XAGUSD", domrepo.H1, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))
}

func TestCachedSeriesProviderDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	next := &countingProvider{err: domrepo.ErrNoData}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	p := NewCachedSeriesProvider(next, mc, time.Minute, nil)

	_, err := p.GetSeries(ctx, "X", domrepo.H4, 3)
	assert.ErrorIs(t, err, domrepo.ErrNoData)
	_, err = p.GetSeries(ctx, "X", domrepo.H4, 3)
	assert.ErrorIs(t, err, domrepo.ErrNoData)
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))

	_, err = p.ListSeries(ctx)
	assert.Error(t, err)
}

func TestHTTPSeriesProviderRetriesAndMaps404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bars":
			if r.URL.Query().Get("source") == "MISSING" {
				http.NotFound(w, r)
				return
			}
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"bars":[{"time":"2024-01-01T00:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":3}]}`))
		case "/series":
			_, _ = w.Write([]byte(`{"series":[{"source":"XAGUSD","interval":"H4"}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	p := NewHTTPSeriesProvider(xhttp.NewClient(xhttp.WithBaseURL(srv.URL)), 100, 10, 5*time.Second, nil)
	ctx := context.Background()

	bars, err := p.GetSeries(ctx, "XAGUSD", domrepo.H4, 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = p.GetSeries(ctx, "MISSING", domrepo.H4, 1)
	assert.True(t, errors.Is(err, domrepo.ErrNoData))

	keys, err := p.ListSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.SeriesKey{{Source: "XAGUSD", Interval: "H4"}}, keys)
}
