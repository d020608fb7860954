package usecase

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/services/analytics"
	"PatternScope/pkg/config"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type memStore struct {
	mu     sync.Mutex
	series map[models.SeriesKey][]models.Bar
}

func newMemStore() *memStore {
	return &memStore{series: make(map[models.SeriesKey][]models.Bar)}
}

func (m *memStore) put(source, interval string, bars []models.Bar) {
	m.series[models.SeriesKey{Source: source, Interval: interval}] = bars
}

func (m *memStore) GetSeries(_ context.Context, source string, interval domrepo.Interval, count int) ([]models.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.series[models.SeriesKey{Source: source, Interval: string(interval)}]
	if len(bars) == 0 {
		return nil, domrepo.ErrNoData
	}
	if count < len(bars) {
		bars = bars[len(bars)-count:]
	}
	return append([]models.Bar(nil), bars...), nil
}

func (m *memStore) GetSeriesAfter(_ context.Context, source string, interval domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bar
	for _, b := range m.series[models.SeriesKey{Source: source, Interval: string(interval)}] {
		if b.Time.After(ts) && len(out) < count {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListSeries(context.Context) ([]models.SeriesKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SeriesKey
	for k := range m.series {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *memStore) SaveBars(_ context.Context, key models.SeriesKey, bars []models.Bar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[key] = append([]models.Bar(nil), bars...)
	return len(bars), nil
}

type memPublisher struct {
	reports []*models.AnalysisReport
}

func (p *memPublisher) PublishReport(_ context.Context, r *models.AnalysisReport) error {
	p.reports = append(p.reports, r)
	return nil
}

func (p *memPublisher) Close() error { return nil }

// sineBars repeats a 50-bar cycle so every phase-aligned window has the same shape.
func sineBars(n int, step time.Duration) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + 10*math.Sin(2*math.Pi*float64(i)/50)
		out[i] = models.Bar{Time: t0.Add(time.Duration(i) * step), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return out
}

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		Timeout:               time.Minute,
		Method:                "feature_aware",
		MinBars:               10,
		Workers:               2,
		CandidateBars:         1000,
		FetchConcurrency:      2,
		Horizon:               10,
		ProjectionConcurrency: 2,
	}
}

func baseParams() AnalysisParams {
	return AnalysisParams{
		Source:         "XAGUSD",
		Interval:       "H4",
		Length:         50,
		MinScore:       0.3,
		TopK:           5,
		Step:           1,
		ExcludeOverlap: true,
	}
}

func TestScanFindsOwnHistoryBeforeBoundary(t *testing.T) {
	store := newMemStore()
	store.put("XAGUSD", "H4", sineBars(400, 4*time.Hour))
	store.put("XAUUSD", "H4", sineBars(5, 4*time.Hour))
	store.put("XAGUSD", "D1", sineBars(400, 24*time.Hour))
	uc := NewPatternAnalysisUseCase(store, store, nil, nil, testConfig(), nil)

	report, err := uc.Scan(context.Background(), baseParams())
	require.NoError(t, err)

	refStart := report.Reference.StartTime
	assert.True(t, refStart.Equal(t0.Add(350*4*time.Hour)))
	require.Len(t, report.Matches, 5)
	for i, m := range report.Matches {
		assert.True(t, m.EndTime.Before(refStart), "match %d ends inside the reference", i)
		assert.Equal(t, 50, m.Length)
		if i > 0 {
			assert.LessOrEqual(t, m.Score, report.Matches[i-1].Score)
		}
	}
	assert.InDelta(t, 1.0, report.Matches[0].Score, 1e-6)
	assert.Equal(t, 0, report.Matches[0].StartIndex%50)

	require.Len(t, report.Candidates, 2, "D1 is filtered out by interval")
	byKey := map[string]models.CandidateOutcome{}
	for _, c := range report.Candidates {
		byKey[c.Source] = c
	}
	assert.Equal(t, models.CandidateComputed, byKey["XAGUSD"].Status)
	assert.Equal(t, 50, byKey["XAGUSD"].Excluded)
	assert.Equal(t, models.CandidateSkipped, byKey["XAUUSD"].Status)
	assert.Equal(t, models.SkipInsufficientData, byKey["XAUUSD"].Reason)
}

func TestScanExplicitCandidatesWithMissingSeries(t *testing.T) {
	store := newMemStore()
	store.put("XAGUSD", "H4", sineBars(300, 4*time.Hour))
	uc := NewPatternAnalysisUseCase(store, nil, nil, nil, testConfig(), nil)

	p := baseParams()
	p.Candidates = []models.SeriesKey{{Source: "MISSING", Interval: "H4"}, {Source: "XAGUSD", Interval: "h4"}, {Source: "XAGUSD", Interval: "H4"}}
	report, err := uc.Scan(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, report.Candidates, 2)
	assert.Equal(t, "MISSING", report.Candidates[0].Source)
	assert.Equal(t, models.CandidateSkipped, report.Candidates[0].Status)
	assert.Equal(t, models.SkipNoData, report.Candidates[0].Reason)
	assert.Equal(t, models.CandidateComputed, report.Candidates[1].Status)
	assert.NotEmpty(t, report.Matches)
}

func TestScanErrors(t *testing.T) {
	store := newMemStore()
	store.put("XAGUSD", "H4", sineBars(300, 4*time.Hour))

	uc := NewPatternAnalysisUseCase(store, nil, nil, nil, testConfig(), nil)
	_, err := uc.Scan(context.Background(), baseParams())
	assert.ErrorIs(t, err, ErrNoCandidates)

	p := baseParams()
	p.Source = "NOPE"
	_, err = uc.Scan(context.Background(), p)
	assert.ErrorIs(t, err, domrepo.ErrNoData)

	p = baseParams()
	p.Method = "fourier"
	_, err = uc.Scan(context.Background(), p)
	assert.Error(t, err)
}

func TestForecastPublishesReport(t *testing.T) {
	store := newMemStore()
	store.put("XAGUSD", "H4", sineBars(400, 4*time.Hour))
	pub := &memPublisher{}
	uc := NewPatternAnalysisUseCase(store, store, pub, nil, testConfig(), nil)

	report, err := uc.Forecast(context.Background(), baseParams())
	require.NoError(t, err)
	require.NotNil(t, report.Forecast)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 10, report.Forecast.Horizon)
	require.Len(t, report.Forecast.Projections, 5)
	for _, pr := range report.Forecast.Projections {
		assert.Equal(t, 10, pr.Bars)
	}
	// phase-aligned matches all continue the same way
	assert.InDelta(t, report.Forecast.Projections[0].FinalChange, report.Forecast.WeightedChange, 1e-6)
	require.Len(t, pub.reports, 1)
	assert.Equal(t, report.ID, pub.reports[0].ID)
}

func TestParamsFromRequest(t *testing.T) {
	off := false
	ms := 0.0
	p := ParamsFromRequest(models.PatternRequest{
		Source:         "XAGUSD",
		Interval:       "H1",
		Candidates:     []models.SeriesKeyRequest{{Source: "XAUUSD"}, {Source: "BTC", Interval: "D1"}},
		ExcludeOverlap: &off,
		MinScore:       &ms,
	})
	assert.False(t, p.ExcludeOverlap)
	assert.Equal(t, 0.0, p.MinScore)
	assert.Equal(t, []models.SeriesKey{{Source: "XAUUSD", Interval: "H1"}, {Source: "BTC", Interval: "D1"}}, p.Candidates)

	assert.True(t, ParamsFromRequest(models.PatternRequest{}).ExcludeOverlap)
}

func TestWithDefaultsReadsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DTWWindow = 5
	cfg.Length = 30
	cfg.TopK = 7
	uc := NewPatternAnalysisUseCase(newMemStore(), nil, nil, nil, cfg, nil)

	p := uc.withDefaults(AnalysisParams{Source: "XAGUSD"})
	assert.Equal(t, 30, p.Length)
	assert.Equal(t, 7, p.TopK)
	require.NotNil(t, p.DTWWindow)
	assert.Equal(t, 5, *p.DTWWindow)

	exact := 0
	p = uc.withDefaults(AnalysisParams{Source: "XAGUSD", DTWWindow: &exact})
	assert.Equal(t, 0, *p.DTWWindow)

	p = NewPatternAnalysisUseCase(newMemStore(), nil, nil, nil, testConfig(), nil).withDefaults(AnalysisParams{})
	assert.Equal(t, 50, p.Length)
	assert.Equal(t, 10, p.TopK)
	assert.Equal(t, "H4", p.Interval)
}

func TestParamsFromRequestKeepsExplicitDTWWindow(t *testing.T) {
	zero := 0
	p := ParamsFromRequest(models.PatternRequest{Source: "XAGUSD", DTWWindow: &zero})
	require.NotNil(t, p.DTWWindow)
	assert.Equal(t, 0, *p.DTWWindow)
	assert.Nil(t, ParamsFromRequest(models.PatternRequest{Source: "XAGUSD"}).DTWWindow)
}

type invalidatorFunc func(ctx context.Context, source string, interval domrepo.Interval) error

func (f invalidatorFunc) Invalidate(ctx context.Context, source string, interval domrepo.Interval) error {
	return f(ctx, source, interval)
}

func TestImportCSV(t *testing.T) {
	store := newMemStore()
	var invalidated string
	inv := invalidatorFunc(func(_ context.Context, source string, interval domrepo.Interval) error {
		invalidated = source + "@" + string(interval)
		return nil
	})
	uc := NewImportUseCase(store, inv, nil)

	csv := strings.Join([]string{
		"Date,Open,High,Low,Close,Volume",
		"2024-01-01 08:00,2,3,1,2.5,10",
		"2024-01-01T04:00:00Z,1,2,0.5,1.5,",
		"2024-01-01 08:00,2,3,1,2.8,11",
	}, "\n")
	key := models.SeriesKey{Source: "XAGUSD", Interval: "H4"}
	res, err := uc.ImportCSV(context.Background(), key, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, "XAGUSD@H4", invalidated)

	bars := store.series[key]
	require.Len(t, bars, 2)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, 2.8, bars[1].Close)
	assert.Equal(t, 11.0, bars[1].Volume)
}

func TestParseBarsCSV(t *testing.T) {
	bars, n, err := ParseBarsCSV(strings.NewReader("1704067200,1,2,0.5,1.5\n1704081600,1.5,2,1,1.8,7\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, bars[0].Time.Equal(t0))
	assert.Equal(t, 7.0, bars[1].Volume)

	for name, in := range map[string]string{
		"empty":       "",
		"header only": "time,open,high,low,close\n",
		"bad header":  "when,o,h,l,c\n",
		"bad number":  "2024-01-01,1,x,0,1\n",
		"high<low":    "2024-01-01,1,0,2,1\n",
		"short row":   "2024-01-01,1,2\n",
		"nan close":   "2024-01-01T00:00:00Z,1,2,0.5,NaN\n",
		"inf open":    "2024-01-01T00:00:00Z,+Inf,2,0.5,1\n",
		"inf volume":  "2024-01-01T00:00:00Z,1,2,0.5,1,-Inf\n",
	} {
		_, _, err := ParseBarsCSV(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidCSV, name)
	}
}

func scaledBars(src []models.Bar, f func(float64) float64) []models.Bar {
	out := make([]models.Bar, len(src))
	for i, bar := range src {
		if f != nil {
			bar.Close = f(bar.Close)
		}
		out[i] = bar
	}
	return out
}

func TestCorrelate(t *testing.T) {
	store := newMemStore()
	a := sineBars(120, time.Hour)
	store.put("A", "H1", a)
	store.put("B", "H1", scaledBars(a, func(c float64) float64 { return 2 * c }))
	store.put("S", "H1", a[:8])
	uc := NewCorrelationUseCase(store, store)

	res, err := uc.Correlate(context.Background(), CorrelationParams{Source: "A", Against: "B", Interval: domrepo.H1, Count: 100, Window: 20})
	require.NoError(t, err)
	assert.Equal(t, 99, res.Overlap)
	assert.InDelta(t, 1.0, res.Coefficient, 1e-9)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)
	assert.Less(t, res.PValue, 1e-6)
	assert.Equal(t, models.StrengthStrong, res.Strength)
	assert.Len(t, res.Rolling, 99-20+1)
	assert.Equal(t, "B", res.Against)
	assert.Equal(t, a[len(a)-1].Time, res.EndTime)

	_, err = uc.Correlate(context.Background(), CorrelationParams{Source: "A", Against: "Z", Interval: domrepo.H1})
	assert.ErrorIs(t, err, domrepo.ErrNoData)

	_, err = uc.Correlate(context.Background(), CorrelationParams{Source: "A", Against: "S", Interval: domrepo.H1})
	assert.ErrorIs(t, err, analytics.ErrInsufficientOverlap)
}

func TestCorrelationRank(t *testing.T) {
	store := newMemStore()
	a := sineBars(120, time.Hour)
	store.put("A", "H1", a)
	store.put("A", "H4", sineBars(120, 4*time.Hour))
	noise := scaledBars(a, nil)
	for i := range noise {
		noise[i].Close = 100 + 10*math.Sin(2*math.Pi*float64(i)/7)
	}
	store.put("NOISE", "H1", noise)
	store.put("INV", "H1", scaledBars(a, func(c float64) float64 { return 200 - c }))
	store.put("TWICE", "H1", scaledBars(a, func(c float64) float64 { return 2 * c }))
	store.put("SHORT", "H1", a[:5])
	store.put("OTHER", "H4", sineBars(120, 4*time.Hour))
	uc := NewCorrelationUseCase(store, store)

	res, err := uc.Rank(context.Background(), RankParams{Source: "A", Interval: domrepo.H1})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "TWICE", res.Results[0].Against)
	assert.Equal(t, models.StrengthStrong, res.Results[0].Strength)
	assert.Equal(t, "INV", res.Results[1].Against)
	assert.Less(t, res.Results[1].Coefficient, -0.99)
	assert.Equal(t, models.DirectionNegative, res.Results[1].Direction)
	assert.Equal(t, "NOISE", res.Results[2].Against)
	assert.Equal(t, models.StrengthNone, res.Results[2].Strength)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "SHORT", res.Skipped[0].Series.Source)
	assert.Equal(t, models.SkipInsufficientData, res.Skipped[0].Reason)

	res, err = uc.Rank(context.Background(), RankParams{Source: "A", Interval: domrepo.H1, Top: 1})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "TWICE", res.Results[0].Against)

	res, err = uc.Rank(context.Background(), RankParams{Source: "A", Interval: domrepo.H1, MinAbsCoeff: 0.3})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)

	// each interval is correlated against the reference at that interval
	res, err = uc.Rank(context.Background(), RankParams{Source: "A", Interval: domrepo.H1, Intervals: []domrepo.Interval{domrepo.H4}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "OTHER", res.Results[0].Against)
	assert.Equal(t, "H4", res.Results[0].Interval)

	_, err = uc.Rank(context.Background(), RankParams{Source: "Z", Interval: domrepo.H1})
	assert.ErrorIs(t, err, domrepo.ErrNoData)

	_, err = NewCorrelationUseCase(store, nil).Rank(context.Background(), RankParams{Source: "A", Interval: domrepo.H1})
	assert.ErrorIs(t, err, ErrCatalogUnsupported)
}

func TestSeriesUseCase(t *testing.T) {
	store := newMemStore()
	store.put("A", "H4", sineBars(10, 4*time.Hour))
	uc := NewSeriesUseCase(store, store)

	res, err := uc.GetSeries(context.Background(), GetSeriesParams{Source: "A", Interval: "bogus", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, "H4", res.Interval)
	assert.Equal(t, 3, res.Count)

	keys, err := uc.ListSeries(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	_, err = NewSeriesUseCase(store, nil).ListSeries(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnsupported)
}

func TestKafkaAnalysisHandler(t *testing.T) {
	store := newMemStore()
	store.put("XAGUSD", "H4", sineBars(400, 4*time.Hour))
	pub := &memPublisher{}
	uc := NewPatternAnalysisUseCase(store, store, pub, nil, testConfig(), nil)
	h := NewKafkaAnalysisHandler("pattern.requests", uc, nil, nil)
	assert.Equal(t, "pattern.requests", h.Topic())

	var perm *backoff.PermanentError
	err := h.Handle(context.Background(), []byte("{"))
	assert.True(t, errors.As(err, &perm))

	err = h.Handle(context.Background(), []byte(`{"interval":"H4"}`))
	assert.True(t, errors.As(err, &perm), "source is required")

	err = h.Handle(context.Background(), []byte(`{"source":"NOPE"}`))
	assert.True(t, errors.As(err, &perm), "unknown reference is not retried")

	require.NoError(t, h.Handle(context.Background(), []byte(`{"source":"XAGUSD","length":50,"top_k":3}`)))
	require.Len(t, pub.reports, 1)
	assert.Len(t, pub.reports[0].Scan.Matches, 3)
}

func TestImportCSVReadOnlyBackend(t *testing.T) {
	uc := NewImportUseCase(nil, nil, nil)
	_, err := uc.ImportCSV(context.Background(), models.SeriesKey{Source: "X", Interval: "H4"},
		strings.NewReader("2024-01-01T00:00:00Z,1,2,0.5,1.5\n"))
	assert.ErrorIs(t, err, ErrImportUnsupported)
}
