// Package scanner slides a reference-length window over candidate series,
// scores every window and ranks the retained matches.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"PatternScope/internal/domain/models"
	"PatternScope/internal/domain/repository"
	"PatternScope/internal/domain/service"
	"PatternScope/internal/services/features"
	"PatternScope/internal/services/normalize"
	"PatternScope/internal/services/similarity"
	"PatternScope/pkg/logger"
)

var (
	ErrInvalidQuery     = errors.New("scanner: invalid query")
	ErrInvalidReference = errors.New("scanner: invalid reference")
)

// MinWindowLength is the shortest reference window accepted.
const MinWindowLength = 2

type Scanner struct {
	profile  similarity.Profile
	log      *logger.Logger
	metrics  repository.Metrics
	workers  int
	minBars  int
	warnBars int
}

var _ service.PatternScanner = (*Scanner)(nil)

func New(opts ...Option) (*Scanner, error) {
	s := defaultScanner()
	for _, opt := range opts {
		opt(s)
	}
	if err := s.profile.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Profile returns the scoring profile in use.
func (s *Scanner) Profile() similarity.Profile { return s.profile }

// NewReference builds the reference pattern from the most recent length bars.
func (s *Scanner) NewReference(source, interval string, bars []models.Bar, length int) (models.ReferencePattern, error) {
	if length < MinWindowLength {
		return models.ReferencePattern{}, fmt.Errorf("%w: length %d < %d", ErrInvalidReference, length, MinWindowLength)
	}
	if len(bars) < length {
		return models.ReferencePattern{}, fmt.Errorf("%w: %s has %d bars, need %d", ErrInvalidReference, source, len(bars), length)
	}
	window := make([]models.Bar, length)
	copy(window, bars[len(bars)-length:])

	norm, err := normalize.Apply(s.profile.Normalization, models.Closes(window))
	if err != nil {
		return models.ReferencePattern{}, err
	}
	return models.ReferencePattern{
		Source:     source,
		Interval:   interval,
		Bars:       window,
		Normalized: norm,
		Features:   features.Extract(window),
	}, nil
}

// Scan scores every window of every candidate against ref and returns the top
// matches. Invalid configuration fails before any candidate is touched.
func (s *Scanner) Scan(ctx context.Context, ref models.ReferencePattern, candidates []models.CandidateSeries, q service.ScanQuery) (*models.ScanReport, error) {
	if err := validate(ref, candidates, q); err != nil {
		return nil, err
	}
	start := time.Now()

	type result struct {
		outcome models.CandidateOutcome
		matches []models.MatchResult
	}
	results := make([]result, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range candidates {
		g.Go(func() error {
			out, matches, err := s.scanCandidate(gctx, ref, candidates[i], q)
			if err != nil {
				return err
			}
			results[i] = result{outcome: out, matches: matches}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("scan")
		}
		return nil, err
	}

	report := &models.ScanReport{
		Reference:     ref.Summary(),
		Method:        string(s.profile.Method),
		Normalization: string(s.profile.Normalization),
		MinScore:      q.MinScore,
		TopK:          q.TopK,
		Candidates:    make([]models.CandidateOutcome, 0, len(candidates)),
	}
	var all []models.MatchResult
	for _, r := range results {
		report.Candidates = append(report.Candidates, r.outcome)
		report.Windows += r.outcome.Windows
		all = append(all, r.matches...)
	}
	report.Matches = rank(all, q.TopK)
	report.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordScan(report.Method, len(candidates), report.Windows, len(report.Matches), report.Duration.Seconds())
	}
	s.log.Info("scan complete",
		logger.String("reference", ref.Source),
		logger.Int("candidates", len(candidates)),
		logger.Int("windows", report.Windows),
		logger.Int("matches", len(report.Matches)),
		logger.Duration("took", report.Duration),
	)
	return report, nil
}

func (s *Scanner) scanCandidate(ctx context.Context, ref models.ReferencePattern, c models.CandidateSeries, q service.ScanQuery) (models.CandidateOutcome, []models.MatchResult, error) {
	out := models.CandidateOutcome{
		Source:   c.Source,
		Interval: c.Interval,
		Status:   models.CandidateComputed,
		Bars:     len(c.Bars),
	}
	log := s.log.With(logger.String("source", c.Source), logger.String("interval", c.Interval))
	L := ref.Len()

	if len(c.Bars) < s.minBars {
		log.Warn("candidate skipped: insufficient data", logger.Int("bars", len(c.Bars)), logger.Int("min_bars", s.minBars))
		return s.skip(out, models.SkipInsufficientData), nil, nil
	}
	if len(c.Bars) < s.warnBars {
		log.Warn("candidate has few bars", logger.Int("bars", len(c.Bars)), logger.Int("warn_bars", s.warnBars))
	}

	bars := c.Bars
	if q.ExcludeFrom != nil {
		bars = before(bars, *q.ExcludeFrom)
		out.Excluded = len(c.Bars) - len(bars)
	}
	if len(bars) < L {
		if q.ExcludeFrom == nil {
			log.Warn("candidate skipped: shorter than reference", logger.Int("bars", len(bars)), logger.Int("length", L))
			return s.skip(out, models.SkipInsufficientData), nil, nil
		}
		log.Warn("candidate skipped: insufficient data after exclusion",
			logger.Int("bars", len(bars)), logger.Int("excluded", out.Excluded))
		return s.skip(out, models.SkipInsufficientAfterExclusion), nil, nil
	}

	step := q.Step
	if c.Step > 0 {
		step = c.Step
	}
	if step < 1 {
		step = 1
	}
	minScore := q.MinScore
	if c.MinScore != nil {
		minScore = *c.MinScore
	}

	refWin := similarity.Window{Normalized: ref.Normalized, Features: ref.Features}
	closes := models.Closes(bars)
	var matches []models.MatchResult
	for i := 0; i+L <= len(bars); i += step {
		if err := ctx.Err(); err != nil {
			return out, nil, err
		}
		win := bars[i : i+L]
		norm, err := normalize.Apply(s.profile.Normalization, closes[i:i+L])
		if err != nil {
			return out, nil, err
		}
		score, sub := s.profile.Score(refWin, similarity.Window{Normalized: norm, Features: features.Extract(win)})
		out.Windows++
		if score > out.BestScore {
			out.BestScore = score
		}
		if score < minScore {
			continue
		}
		matches = append(matches, models.MatchResult{
			Source:     c.Source,
			Interval:   c.Interval,
			StartIndex: i,
			EndIndex:   i + L - 1,
			StartTime:  win[0].Time,
			EndTime:    win[L-1].Time,
			Length:     L,
			EndClose:   win[L-1].Close,
			Score:      score,
			Scores:     sub,
			Method:     s.profile.Describe(sub),
		})
	}
	out.Retained = len(matches)
	log.Debug("candidate scanned",
		logger.Int("windows", out.Windows),
		logger.Int("retained", out.Retained),
		logger.Float64("best_score", out.BestScore),
	)
	return out, matches, nil
}

func (s *Scanner) skip(out models.CandidateOutcome, reason string) models.CandidateOutcome {
	out.Status = models.CandidateSkipped
	out.Reason = reason
	if s.metrics != nil {
		s.metrics.RecordCandidateSkipped(reason)
	}
	return out
}

// before returns the prefix of ascending bars strictly earlier than ts.
func before(bars []models.Bar, ts time.Time) []models.Bar {
	n := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(ts) })
	return bars[:n]
}

// rank orders matches by score descending, keeping encounter order for ties, and
// truncates to topK.
func rank(matches []models.MatchResult, topK int) []models.MatchResult {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		return []models.MatchResult{}
	}
	return matches
}

func validate(ref models.ReferencePattern, candidates []models.CandidateSeries, q service.ScanQuery) error {
	if ref.Len() < MinWindowLength || len(ref.Normalized) != ref.Len() {
		return fmt.Errorf("%w: reference window of %d bars", ErrInvalidReference, ref.Len())
	}
	if q.TopK < 1 {
		return fmt.Errorf("%w: top_k %d < 1", ErrInvalidQuery, q.TopK)
	}
	if q.Step < 0 {
		return fmt.Errorf("%w: step %d < 0", ErrInvalidQuery, q.Step)
	}
	if !inUnit(q.MinScore) {
		return fmt.Errorf("%w: min_score %v outside [0,1]", ErrInvalidQuery, q.MinScore)
	}
	for _, c := range candidates {
		if c.Step < 0 {
			return fmt.Errorf("%w: %s step %d < 0", ErrInvalidQuery, c.Source, c.Step)
		}
		if c.MinScore != nil && !inUnit(*c.MinScore) {
			return fmt.Errorf("%w: %s min_score %v outside [0,1]", ErrInvalidQuery, c.Source, *c.MinScore)
		}
	}
	return nil
}

func inUnit(x float64) bool { return x >= 0 && x <= 1 }
