package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/services/analytics"
	"PatternScope/internal/services/scanner"
	"PatternScope/internal/usecase"
	"PatternScope/pkg/config"
	"PatternScope/pkg/http/middleware"
	xlogger "PatternScope/pkg/logger"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type memStore struct {
	mu     sync.Mutex
	series map[models.SeriesKey][]models.Bar
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
	out := make([]models.SeriesKey, 0, len(m.series))
	for k := range m.series {
		out = append(out, k)
	}
	return out, nil
}

func (m *memStore) SaveBars(_ context.Context, key models.SeriesKey, bars []models.Bar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[key] = append([]models.Bar(nil), bars...)
	return len(bars), nil
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func sineBars(n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		c := 100 + 10*math.Sin(2*math.Pi*float64(i)/50)
		out[i] = models.Bar{Time: t0.Add(time.Duration(i) * 4 * time.Hour), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return out
}

func newTestServer(t *testing.T, store *memStore, limiter middleware.Allower) *echo.Echo {
	t.Helper()
	cfg := config.AnalysisConfig{
		Timeout:               time.Minute,
		Method:                "feature_aware",
		MinBars:               10,
		Workers:               2,
		CandidateBars:         1000,
		FetchConcurrency:      2,
		Horizon:               10,
		ProjectionConcurrency: 2,
	}
	l := xlogger.Nop()
	h := NewPatternsEchoHandler(l,
		usecase.NewPatternAnalysisUseCase(store, store, nil, nil, cfg, l),
		usecase.NewSeriesUseCase(store, store),
		usecase.NewImportUseCase(store, nil, l),
		usecase.NewCorrelationUseCase(store, store),
		limiter,
	)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api"))
	return e
}

func do(e *echo.Echo, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seeded() *memStore {
	s := &memStore{series: make(map[models.SeriesKey][]models.Bar)}
	s.series[models.SeriesKey{Source: "XAGUSD", Interval: "H4"}] = sineBars(400)
	return s
}

func TestScanEndpoint(t *testing.T) {
	e := newTestServer(t, seeded(), nil)

	rec := do(e, http.MethodPost, "/api/patterns/scan", echo.MIMEApplicationJSON,
		`{"source":"XAGUSD","interval":"H4","length":50,"top_k":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data models.ScanReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Matches, 3)
	assert.InDelta(t, 1.0, resp.Data.Matches[0].Score, 1e-6)
}

func TestScanEndpointValidation(t *testing.T) {
	e := newTestServer(t, seeded(), nil)

	rec := do(e, http.MethodPost, "/api/patterns/scan", echo.MIMEApplicationJSON, `{"interval":"H4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/patterns/scan", echo.MIMEApplicationJSON, `{"source":"XAGUSD","min_score":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanEndpointUnknownSource(t *testing.T) {
	e := newTestServer(t, seeded(), nil)

	rec := do(e, http.MethodPost, "/api/patterns/scan", echo.MIMEApplicationJSON, `{"source":"EURUSD"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastEndpoint(t *testing.T) {
	e := newTestServer(t, seeded(), nil)

	rec := do(e, http.MethodPost, "/api/patterns/forecast", echo.MIMEApplicationJSON,
		`{"source":"XAGUSD","length":50,"top_k":3,"horizon":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"forecast"`)
}

func TestPatternRoutesRateLimited(t *testing.T) {
	e := newTestServer(t, seeded(), denyAll{})

	rec := do(e, http.MethodPost, "/api/patterns/scan", echo.MIMEApplicationJSON, `{"source":"XAGUSD"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(e, http.MethodGet, "/api/series?source=XAGUSD&count=5", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSeriesEndpoints(t *testing.T) {
	e := newTestServer(t, seeded(), nil)

	rec := do(e, http.MethodGet, "/api/series?source=XAGUSD&interval=H4&count=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data usecase.GetSeriesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Bars, 5)

	rec = do(e, http.MethodGet, "/api/series?source=NOPE", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/series/catalog", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "XAGUSD")
}

func TestImportEndpoint(t *testing.T) {
	store := seeded()
	e := newTestServer(t, store, nil)

	csv := "time,open,high,low,close,volume\n" +
		"2024-01-01T00:00:00Z,1,2,0.5,1.5,10\n" +
		"2024-01-01T04:00:00Z,1.5,2.5,1,2,12\n"
	rec := do(e, http.MethodPost, "/api/series/import?source=EURUSD&interval=H4", "text/csv", csv)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, store.series[models.SeriesKey{Source: "EURUSD", Interval: "H4"}], 2)

	rec = do(e, http.MethodPost, "/api/series/import?source=EURUSD", "text/csv", "time,open\nbad,row\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/series/import", "text/csv", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrelationEndpoint(t *testing.T) {
	store := seeded()
	store.series[models.SeriesKey{Source: "XAUUSD", Interval: "H4"}] = sineBars(400)
	e := newTestServer(t, store, nil)

	rec := do(e, http.MethodGet, "/api/correlation?source=XAGUSD&against=XAUUSD&count=200&window=20", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/correlation?source=XAGUSD&against=XAGUSD", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.series[models.SeriesKey{Source: "SHORT", Interval: "H4"}] = sineBars(6)
	rec = do(e, http.MethodGet, "/api/correlation?source=XAGUSD&against=SHORT", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCorrelationRankEndpoint(t *testing.T) {
	store := seeded()
	store.series[models.SeriesKey{Source: "XAUUSD", Interval: "H4"}] = sineBars(400)
	store.series[models.SeriesKey{Source: "SHORT", Interval: "H4"}] = sineBars(6)
	store.series[models.SeriesKey{Source: "XPTUSD", Interval: "H1"}] = sineBars(400)
	e := newTestServer(t, store, nil)

	rec := do(e, http.MethodGet, "/api/correlation/rank?source=XAGUSD", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data models.CorrelationRanking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "XAUUSD", resp.Data.Results[0].Against)
	assert.Equal(t, models.StrengthStrong, resp.Data.Results[0].Strength)
	require.Len(t, resp.Data.Skipped, 1)
	assert.Equal(t, models.SkipInsufficientData, resp.Data.Skipped[0].Reason)

	rec = do(e, http.MethodGet, "/api/correlation/rank?source=XAGUSD&intervals=D2", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/correlation/rank?source=NOPE", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", scanner.ErrInvalidQuery), http.StatusBadRequest},
		{usecase.ErrNoCandidates, http.StatusBadRequest},
		{fmt.Errorf("x: %w", domrepo.ErrNoData), http.StatusNotFound},
		{fmt.Errorf("a vs b: %w", analytics.ErrInsufficientOverlap), http.StatusUnprocessableEntity},
		{usecase.ErrImportUnsupported, http.StatusNotImplemented},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{usecase.ErrCatalogUnsupported, http.StatusNotImplemented},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		appErr := toAppError(tc.err)
		assert.Equal(t, tc.status, appErr.Status, tc.err.Error())
		assert.ErrorIs(t, appErr, tc.err)
	}
}
