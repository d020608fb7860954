package repository

import (
	"context"
	"errors"
	"time"

	"PatternScope/internal/domain/models"
)

// ErrNoData is returned by providers when a series has no bars for the request.
var ErrNoData = errors.New("no data for series")

// SeriesProvider provides read-only access to bars. Bars are ascending in time;
// gaps are returned as-is.
type SeriesProvider interface {
	// GetSeries returns the most recent count bars.
	GetSeries(ctx context.Context, source string, interval Interval, count int) ([]models.Bar, error)
	// GetSeriesAfter returns up to count bars strictly after ts.
	GetSeriesAfter(ctx context.Context, source string, interval Interval, ts time.Time, count int) ([]models.Bar, error)
}

// SeriesCatalog lists the series a provider can serve.
type SeriesCatalog interface {
	ListSeries(ctx context.Context) ([]models.SeriesKey, error)
}

// SeriesWriter persists bars, replacing bars with the same timestamp.
type SeriesWriter interface {
	SaveBars(ctx context.Context, key models.SeriesKey, bars []models.Bar) (int, error)
}

// SeriesStore is a full read/write backend.
type SeriesStore interface {
	SeriesProvider
	SeriesCatalog
	SeriesWriter
	Close() error
}

// ResultPublisher ships analysis reports to downstream consumers.
type ResultPublisher interface {
	PublishReport(ctx context.Context, r *models.AnalysisReport) error
	Close() error
}

type Metrics interface {
	RecordScan(method string, candidates, windows, matches int, seconds float64)
	RecordCandidateSkipped(reason string)
	RecordProjection(retained, discarded int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
