package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans          *prometheus.CounterVec
	scanWindows    *prometheus.CounterVec
	scanMatches    *prometheus.HistogramVec
	scanCandidates prometheus.Histogram
	scanDuration   *prometheus.HistogramVec
	skipped        *prometheus.CounterVec
	projections    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a Recorder registered on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the recorder's collectors on reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscope_scans_total",
				Help: "Total number of pattern scans",
			},
			[]string{"method"},
		),
		scanWindows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscope_scan_windows_total",
				Help: "Candidate windows scored",
			},
			[]string{"method"},
		),
		scanMatches: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternscope_scan_matches",
				Help:    "Matches returned per scan",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"method"},
		),
		scanCandidates: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "patternscope_scan_candidates",
				Help:    "Candidate series per scan",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternscope_scan_duration_seconds",
				Help:    "Wall time of a scan",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscope_candidates_skipped_total",
				Help: "Candidate series skipped during scans",
			},
			[]string{"reason"},
		),
		projections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscope_projections_total",
				Help: "Match projections by outcome",
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternscope_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternscope_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScan records one completed scan.
func (r *Recorder) RecordScan(method string, candidates, windows, matches int, seconds float64) {
	r.scans.WithLabelValues(method).Inc()
	r.scanWindows.WithLabelValues(method).Add(float64(windows))
	r.scanMatches.WithLabelValues(method).Observe(float64(matches))
	r.scanCandidates.Observe(float64(candidates))
	r.scanDuration.WithLabelValues(method).Observe(seconds)
}

func (r *Recorder) RecordCandidateSkipped(reason string) {
	r.skipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordProjection(retained, discarded int) {
	r.projections.WithLabelValues("retained").Add(float64(retained))
	r.projections.WithLabelValues("discarded").Add(float64(discarded))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
