package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	xhttp "PatternScope/pkg/http"
	applogger "PatternScope/pkg/logger"
)

// HTTPSeriesProvider reads bars from a remote market-data gateway.
//
//	GET /bars?source=&interval=&count=[&after=RFC3339]  -> {"bars": [...]}
//	GET /series                                         -> {"series": [{"source","interval"}]}
//
// Requests are throttled and retried with exponential backoff on transport errors,
// 429 and 5xx. A 404 means the series is unknown.
type HTTPSeriesProvider struct {
	client     *xhttp.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	l          *applogger.Logger
}

var (
	_ domrepo.SeriesProvider = (*HTTPSeriesProvider)(nil)
	_ domrepo.SeriesCatalog  = (*HTTPSeriesProvider)(nil)
)

type barsResponse struct {
	Bars []models.Bar `json:"bars"`
}

type seriesResponse struct {
	Series []models.SeriesKey `json:"series"`
}

func NewHTTPSeriesProvider(client *xhttp.Client, rps float64, burst int, maxElapsed time.Duration, l *applogger.Logger) *HTTPSeriesProvider {
	if burst < 1 {
		burst = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &HTTPSeriesProvider{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxElapsed: maxElapsed,
		l:          l,
	}
}

func (p *HTTPSeriesProvider) GetSeries(ctx context.Context, source string, interval domrepo.Interval, count int) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("source", source)
	q.Set("interval", string(interval))
	q.Set("count", strconv.Itoa(count))

	var resp barsResponse
	if err := p.get(ctx, "/bars", q, &resp); err != nil {
		return nil, fmt.Errorf("%s@%s: %w", source, interval, err)
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("%s@%s: %w", source, interval, domrepo.ErrNoData)
	}
	return resp.Bars, nil
}

func (p *HTTPSeriesProvider) GetSeriesAfter(ctx context.Context, source string, interval domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("source", source)
	q.Set("interval", string(interval))
	q.Set("count", strconv.Itoa(count))
	q.Set("after", ts.UTC().Format(time.RFC3339))

	var resp barsResponse
	if err := p.get(ctx, "/bars", q, &resp); err != nil {
		return nil, fmt.Errorf("%s@%s after %s: %w", source, interval, ts.Format(time.RFC3339), err)
	}
	return resp.Bars, nil
}

func (p *HTTPSeriesProvider) ListSeries(ctx context.Context) ([]models.SeriesKey, error) {
	var resp seriesResponse
	if err := p.get(ctx, "/series", nil, &resp); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return resp.Series, nil
}

func (p *HTTPSeriesProvider) get(ctx context.Context, path string, q url.Values, dest interface{}) error {
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := p.client.GetJSON(ctx, path, q, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			if se.Code == http.StatusNotFound {
				return backoff.Permanent(domrepo.ErrNoData)
			}
			if !se.Temporary() {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.maxElapsed
	notify := func(err error, wait time.Duration) {
		p.l.Warn("gateway request retry",
			applogger.String("path", path),
			applogger.Duration("wait_ms", wait),
			applogger.Error(err))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}
