// Package projector turns the post-match segments of ranked matches into a
// similarity-weighted ensemble forecast. Outputs are descriptive statistics.
package projector

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"PatternScope/internal/domain/models"
	"PatternScope/internal/domain/repository"
	"PatternScope/internal/domain/service"
	"PatternScope/pkg/logger"
)

// Trend thresholds, in percent of the match end close.
const (
	upThreshold   = 2.0
	downThreshold = -2.0
)

// Risk bucket thresholds, in percent.
const (
	riskHigh   = 5.0
	riskMedium = 3.0
)

const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Discard reasons.
const (
	DiscardNoFutureBars = "no_future_bars"
	DiscardZeroClose    = "zero_end_close"
	DiscardSupplier     = "supplier_error"
)

type Projector struct {
	horizon     int
	concurrency int
	log         *logger.Logger
	metrics     repository.Metrics
}

var _ service.OutcomeProjector = (*Projector)(nil)

func New(opts ...Option) *Projector {
	p := &Projector{
		horizon:     DefaultHorizon,
		concurrency: DefaultConcurrency,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Projector) Horizon() int { return p.horizon }

// Project fetches the post-match bars of every match and aggregates them.
// Supplier failures discard the match; only context cancellation is an error.
func (p *Projector) Project(ctx context.Context, matches []models.MatchResult, supplier service.FutureBarSupplier) (*models.EnsembleForecast, error) {
	type slot struct {
		proj    models.Projection
		ok      bool
		discard string
	}
	slots := make([]slot, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range matches {
		g.Go(func() error {
			m := matches[i]
			bars, err := supplier.BarsAfter(gctx, m, p.horizon)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.log.Warn("future bars unavailable",
					logger.String("source", m.Source),
					logger.Time("end_time", m.EndTime),
					logger.Error(err),
				)
				slots[i].discard = DiscardSupplier
				return nil
			}
			proj, ok := p.ProjectMatch(m, bars)
			if !ok {
				slots[i].discard = discardReason(m)
				return nil
			}
			slots[i] = slot{proj: proj, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		projections []models.Projection
		discarded   []models.DiscardedMatch
	)
	for i, s := range slots {
		if s.ok {
			projections = append(projections, s.proj)
			continue
		}
		discarded = append(discarded, models.DiscardedMatch{Match: matches[i], Reason: s.discard})
	}

	f := Ensemble(p.horizon, projections)
	f.Discarded = discarded
	if p.metrics != nil {
		p.metrics.RecordProjection(len(projections), len(discarded))
	}
	p.log.Info("projection complete",
		logger.Int("matches", len(matches)),
		logger.Int("projected", len(projections)),
		logger.Int("discarded", len(discarded)),
		logger.String("most_likely", string(f.MostLikely)),
	)
	return &f, nil
}

func discardReason(m models.MatchResult) string {
	if m.EndClose == 0 {
		return DiscardZeroClose
	}
	return DiscardNoFutureBars
}

// ProjectMatch describes the bars following m, using at most the horizon.
// It reports false when there is nothing to project.
func (p *Projector) ProjectMatch(m models.MatchResult, bars []models.Bar) (models.Projection, bool) {
	if len(bars) > p.horizon {
		bars = bars[:p.horizon]
	}
	if len(bars) == 0 || m.EndClose == 0 {
		return models.Projection{}, false
	}

	traj := make([]float64, len(bars))
	for i, b := range bars {
		traj[i] = (b.Close - m.EndClose) / m.EndClose * 100
	}
	pr := models.Projection{
		Match:       m,
		Bars:        len(bars),
		Trajectory:  traj,
		FinalChange: traj[len(traj)-1],
		MaxGain:     traj[0],
		MaxLoss:     traj[0],
	}
	for _, v := range traj[1:] {
		pr.MaxGain = math.Max(pr.MaxGain, v)
		pr.MaxLoss = math.Min(pr.MaxLoss, v)
	}
	if len(traj) > 1 {
		pr.Volatility = popStd(traj)
	}
	pr.Trend = classify(pr.FinalChange)
	return pr, true
}

// Ensemble aggregates projections with weights proportional to match score.
// When all scores are zero every projection weighs the same.
func Ensemble(horizon int, projections []models.Projection) models.EnsembleForecast {
	f := models.EnsembleForecast{
		Horizon:            horizon,
		Projections:        projections,
		TrendProbabilities: make(map[models.Trend]float64, len(models.Trends)),
		MeanTrajectory:     []float64{},
	}
	for _, t := range models.Trends {
		f.TrendProbabilities[t] = 0
	}
	if len(projections) == 0 {
		f.Projections = []models.Projection{}
		f.Risk = assess(0, 0)
		return f
	}

	weights := make([]float64, len(projections))
	var total float64
	for i, pr := range projections {
		weights[i] = math.Max(pr.Match.Score, 0)
		total += weights[i]
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}
	for i := range weights {
		weights[i] /= total
	}

	longest := 0
	for i, pr := range projections {
		w := weights[i]
		f.WeightedChange += pr.FinalChange * w
		f.WeightedMaxGain += pr.MaxGain * w
		f.WeightedMaxLoss += pr.MaxLoss * w
		f.WeightedVolatility += pr.Volatility * w
		f.TrendProbabilities[pr.Trend] += w
		longest = max(longest, len(pr.Trajectory))
	}

	best := -1.0
	for _, t := range models.Trends {
		if f.TrendProbabilities[t] > best {
			best = f.TrendProbabilities[t]
			f.MostLikely = t
		}
	}

	sums := make([]float64, longest)
	present := make([]float64, longest)
	for i, pr := range projections {
		for j, v := range pr.Trajectory {
			sums[j] += v * weights[i]
			present[j] += weights[i]
		}
	}
	f.MeanTrajectory = make([]float64, longest)
	for j := range sums {
		if present[j] > 0 {
			f.MeanTrajectory[j] = sums[j] / present[j]
		}
	}

	f.Risk = assess(f.WeightedVolatility, f.WeightedMaxLoss)
	return f
}

func assess(volatility, maxLoss float64) models.RiskAssessment {
	return models.RiskAssessment{
		VolatilityLevel: bucket(volatility),
		DrawdownLevel:   bucket(math.Abs(maxLoss)),
	}
}

func bucket(v float64) string {
	switch {
	case v > riskHigh:
		return RiskHigh
	case v > riskMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

func classify(change float64) models.Trend {
	switch {
	case change > upThreshold:
		return models.TrendUp
	case change < downThreshold:
		return models.TrendDown
	default:
		return models.TrendRange
	}
}

func popStd(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
