package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/domain/service"
	"PatternScope/internal/services/projector"
	"PatternScope/internal/services/scanner"
	"PatternScope/internal/services/similarity"
	"PatternScope/pkg/config"
	applogger "PatternScope/pkg/logger"
)

// ErrNoCandidates is returned when no candidate list was given and the provider
// has no catalog to auto-detect from.
var ErrNoCandidates = errors.New("no candidate series")

// AnalysisParams is one pattern search request. Zero values take the configured
// defaults; a nil DTWWindow does too, while an explicit 0 selects exact DTW.
type AnalysisParams struct {
	Source         string             `json:"source"`
	Interval       string             `json:"interval"`
	Length         int                `json:"length"`
	Candidates     []models.SeriesKey `json:"candidates,omitempty"`
	CandidateBars  int                `json:"candidate_bars"`
	MinScore       float64            `json:"min_score"`
	TopK           int                `json:"top_k"`
	Step           int                `json:"step"`
	ExcludeOverlap bool               `json:"exclude_overlap"`
	Method         string             `json:"method"`
	Shape          string             `json:"shape"`
	Normalization  string             `json:"normalization"`
	DTWWindow      *int               `json:"dtw_window,omitempty"`
	Horizon        int                `json:"horizon"`
}

// ParamsFromRequest converts a validated HTTP or Kafka request.
func ParamsFromRequest(r models.PatternRequest) AnalysisParams {
	p := AnalysisParams{
		Source:         r.Source,
		Interval:       r.Interval,
		Length:         r.Length,
		CandidateBars:  r.CandidateBars,
		TopK:           r.TopK,
		Step:           r.Step,
		ExcludeOverlap: r.ExcludeOverlap == nil || *r.ExcludeOverlap,
		Method:         r.Method,
		Shape:          r.Shape,
		Normalization:  r.Normalization,
		DTWWindow:      r.DTWWindow,
		Horizon:        r.Horizon,
	}
	if r.MinScore != nil {
		p.MinScore = *r.MinScore
	}
	for _, c := range r.Candidates {
		iv := c.Interval
		if iv == "" {
			iv = r.Interval
		}
		p.Candidates = append(p.Candidates, models.SeriesKey{Source: c.Source, Interval: iv})
	}
	return p
}

// PatternAnalysisUseCase loads series, runs the scan and the ensemble projection.
type PatternAnalysisUseCase struct {
	provider  domrepo.SeriesProvider
	catalog   domrepo.SeriesCatalog
	publisher domrepo.ResultPublisher
	metrics   domrepo.Metrics
	cfg       config.AnalysisConfig
	l         *applogger.Logger
	now       func() time.Time
}

// NewPatternAnalysisUseCase wires the use case. catalog, publisher and metrics may be nil.
func NewPatternAnalysisUseCase(
	provider domrepo.SeriesProvider,
	catalog domrepo.SeriesCatalog,
	publisher domrepo.ResultPublisher,
	metrics domrepo.Metrics,
	cfg config.AnalysisConfig,
	l *applogger.Logger,
) *PatternAnalysisUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	def := config.Default().Analysis
	if cfg.Length == 0 {
		cfg.Length = def.Length
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	return &PatternAnalysisUseCase{
		provider:  provider,
		catalog:   catalog,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		l:         l,
		now:       time.Now,
	}
}

func (uc *PatternAnalysisUseCase) withDefaults(p AnalysisParams) AnalysisParams {
	p.Interval = string(domrepo.NormalizeInterval(p.Interval))
	if p.Length == 0 {
		p.Length = uc.cfg.Length
	}
	if p.CandidateBars <= 0 {
		p.CandidateBars = uc.cfg.CandidateBars
	}
	if p.TopK == 0 {
		p.TopK = uc.cfg.TopK
	}
	if p.Method == "" {
		p.Method = uc.cfg.Method
	}
	if p.Shape == "" {
		p.Shape = uc.cfg.Shape
	}
	if p.Normalization == "" {
		p.Normalization = uc.cfg.Normalization
	}
	if p.DTWWindow == nil {
		w := uc.cfg.DTWWindow
		p.DTWWindow = &w
	}
	if p.Horizon <= 0 {
		p.Horizon = uc.cfg.Horizon
	}
	return p
}

// Scan runs the similarity search only.
func (uc *PatternAnalysisUseCase) Scan(ctx context.Context, p AnalysisParams) (*models.ScanReport, error) {
	p = uc.withDefaults(p)
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := uc.now()
	report, err := uc.scan(ctx, p)
	uc.observe("scan", start, err)
	return report, err
}

// Forecast runs the search, projects the matches and publishes the report when
// a publisher is configured. Publish failures are logged, not returned.
func (uc *PatternAnalysisUseCase) Forecast(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error) {
	p = uc.withDefaults(p)
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := uc.now()
	report, err := uc.forecast(ctx, p)
	uc.observe("forecast", start, err)
	if err != nil {
		return nil, err
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishReport(ctx, report); err != nil {
			uc.l.Error("publish report", applogger.String("id", report.ID), applogger.Error(err))
			if uc.metrics != nil {
				uc.metrics.RecordError("publish")
			}
		}
	}
	return report, nil
}

func (uc *PatternAnalysisUseCase) forecast(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error) {
	scan, err := uc.scan(ctx, p)
	if err != nil {
		return nil, err
	}
	proj := projector.New(
		projector.WithHorizon(p.Horizon),
		projector.WithConcurrency(uc.cfg.ProjectionConcurrency),
		projector.WithLogger(uc.l),
		projector.WithMetrics(uc.metrics),
	)
	fc, err := proj.Project(ctx, scan.Matches, futureBars{provider: uc.provider})
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return &models.AnalysisReport{
		ID:        uuid.NewString(),
		CreatedAt: uc.now().UTC(),
		Scan:      scan,
		Forecast:  fc,
	}, nil
}

func (uc *PatternAnalysisUseCase) scan(ctx context.Context, p AnalysisParams) (*models.ScanReport, error) {
	profile, err := similarity.ParseProfile(p.Method, p.Shape, p.Normalization, *p.DTWWindow)
	if err != nil {
		return nil, err
	}
	sc, err := scanner.New(
		scanner.WithProfile(profile),
		scanner.WithLogger(uc.l),
		scanner.WithMetrics(uc.metrics),
		scanner.WithWorkers(uc.cfg.Workers),
		scanner.WithMinBars(uc.cfg.MinBars),
		scanner.WithWarnBars(uc.cfg.WarnBars),
	)
	if err != nil {
		return nil, err
	}

	interval := domrepo.Interval(p.Interval)
	refBars, err := uc.provider.GetSeries(ctx, p.Source, interval, p.Length)
	if err != nil {
		return nil, fmt.Errorf("load reference: %w", err)
	}
	ref, err := sc.NewReference(p.Source, p.Interval, refBars, p.Length)
	if err != nil {
		return nil, err
	}

	keys, err := uc.resolveCandidates(ctx, p)
	if err != nil {
		return nil, err
	}
	fetched, failed := uc.fetchCandidates(ctx, keys, p.CandidateBars)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := service.ScanQuery{MinScore: p.MinScore, TopK: p.TopK, Step: p.Step}
	if p.ExcludeOverlap {
		boundary := ref.StartTime()
		q.ExcludeFrom = &boundary
	}

	candidates := make([]models.CandidateSeries, 0, len(keys))
	for i, k := range keys {
		if _, bad := failed[i]; bad {
			continue
		}
		candidates = append(candidates, models.CandidateSeries{Source: k.Source, Interval: k.Interval, Bars: fetched[i]})
	}
	report, err := sc.Scan(ctx, ref, candidates, q)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		report.Candidates = mergeOutcomes(keys, report.Candidates, failed)
	}
	return report, nil
}

// resolveCandidates returns the explicit list, or every catalog series in the
// configured intervals. The reference series itself is a candidate so its own
// history before the exclusion boundary is searched.
func (uc *PatternAnalysisUseCase) resolveCandidates(ctx context.Context, p AnalysisParams) ([]models.SeriesKey, error) {
	if len(p.Candidates) > 0 {
		return dedupe(p.Candidates), nil
	}
	if uc.catalog == nil {
		return nil, ErrNoCandidates
	}
	all, err := uc.catalog.ListSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}

	allowed := map[string]bool{p.Interval: true}
	if len(uc.cfg.Intervals) > 0 {
		allowed = make(map[string]bool, len(uc.cfg.Intervals))
		for _, iv := range uc.cfg.Intervals {
			allowed[strings.ToUpper(iv)] = true
		}
	}
	var out []models.SeriesKey
	for _, k := range all {
		if allowed[strings.ToUpper(k.Interval)] {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return dedupe(out), nil
}

// fetchCandidates loads every candidate concurrently. Failures are returned by
// index as skipped outcomes so one bad series never aborts the scan.
func (uc *PatternAnalysisUseCase) fetchCandidates(ctx context.Context, keys []models.SeriesKey, count int) ([][]models.Bar, map[int]models.CandidateOutcome) {
	bars := make([][]models.Bar, len(keys))
	errs := make([]error, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.FetchConcurrency)
	for i, k := range keys {
		g.Go(func() error {
			bars[i], errs[i] = uc.provider.GetSeries(gctx, k.Source, domrepo.Interval(k.Interval), count)
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[int]models.CandidateOutcome)
	for i, err := range errs {
		if err == nil {
			continue
		}
		k := keys[i]
		if !errors.Is(err, domrepo.ErrNoData) {
			uc.l.Warn("candidate fetch failed",
				applogger.String("source", k.Source),
				applogger.String("interval", k.Interval),
				applogger.Error(err))
		}
		if uc.metrics != nil {
			uc.metrics.RecordCandidateSkipped(models.SkipNoData)
		}
		failed[i] = models.CandidateOutcome{
			Source:   k.Source,
			Interval: k.Interval,
			Status:   models.CandidateSkipped,
			Reason:   models.SkipNoData,
		}
	}
	return bars, failed
}

// mergeOutcomes restores candidate order with fetch failures in place.
func mergeOutcomes(keys []models.SeriesKey, scanned []models.CandidateOutcome, failed map[int]models.CandidateOutcome) []models.CandidateOutcome {
	out := make([]models.CandidateOutcome, 0, len(keys))
	j := 0
	for i := range keys {
		if o, ok := failed[i]; ok {
			out = append(out, o)
			continue
		}
		out = append(out, scanned[j])
		j++
	}
	return out
}

func dedupe(keys []models.SeriesKey) []models.SeriesKey {
	seen := make(map[models.SeriesKey]bool, len(keys))
	out := make([]models.SeriesKey, 0, len(keys))
	for _, k := range keys {
		k.Interval = strings.ToUpper(k.Interval)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func (uc *PatternAnalysisUseCase) observe(op string, start time.Time, err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordLatency(op, time.Since(start).Seconds())
	if err != nil {
		uc.metrics.RecordError(op)
	}
}

// futureBars supplies post-match bars from the series provider.
type futureBars struct {
	provider domrepo.SeriesProvider
}

func (f futureBars) BarsAfter(ctx context.Context, m models.MatchResult, count int) ([]models.Bar, error) {
	return f.provider.GetSeriesAfter(ctx, m.Source, domrepo.Interval(m.Interval), m.EndTime, count)
}
