package analytics

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"PatternScope/internal/domain/models"
	"PatternScope/internal/services/similarity"
)

// MinCommonPoints is the fewest aligned returns a coefficient is reported for.
const MinCommonPoints = 10

// Strength buckets on |r|.
const (
	StrongThreshold   = 0.7
	ModerateThreshold = 0.5
	WeakThreshold     = 0.3
)

var ErrInsufficientOverlap = errors.New("insufficient common history")

// LogReturn is ln(close[t]/close[t-1]) stamped with the time of bar t.
type LogReturn struct {
	Time  time.Time
	Value float64
}

// LogReturns computes per-bar log returns. A pair involving a non-positive
// close has no defined return and is skipped.
func LogReturns(bars []models.Bar) []LogReturn {
	if len(bars) < 2 {
		return nil
	}
	out := make([]LogReturn, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, LogReturn{Time: bars[i].Time, Value: math.Log(cur / prev)})
	}
	return out
}

// Correlate computes the Pearson correlation of the log returns of a and b.
// Returns are taken per series first and then joined on exact timestamps.
// Rolling coefficients cover window consecutive aligned returns.
func Correlate(a, b []models.Bar, window int) (models.CorrelationResult, error) {
	ra, rb, times := alignReturns(LogReturns(a), LogReturns(b))
	res := models.CorrelationResult{Overlap: len(ra), Window: window}
	if len(ra) < MinCommonPoints {
		return res, ErrInsufficientOverlap
	}

	r := clamp(similarity.Pearson(ra, rb))
	res.Coefficient = r
	res.RSquared = r * r
	res.PValue = PValue(r, len(ra))
	res.Strength = Strength(r)
	res.Direction = Direction(r)
	res.StartTime = times[0]
	res.EndTime = times[len(times)-1]

	if window >= 3 && window <= len(ra) {
		res.Rolling = make([]float64, 0, len(ra)-window+1)
		for i := 0; i+window <= len(ra); i++ {
			res.Rolling = append(res.Rolling, similarity.Pearson(ra[i:i+window], rb[i:i+window]))
		}
	}
	return res, nil
}

// PValue is the two-sided p-value of r over n pairs under H0: rho = 0, using
// t = r*sqrt((n-2)/(1-r^2)) with n-2 degrees of freedom.
func PValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return 2 * dist.Survival(math.Abs(t))
}

func Strength(r float64) string {
	switch abs := math.Abs(r); {
	case abs >= StrongThreshold:
		return models.StrengthStrong
	case abs >= ModerateThreshold:
		return models.StrengthModerate
	case abs >= WeakThreshold:
		return models.StrengthWeak
	default:
		return models.StrengthNone
	}
}

func Direction(r float64) string {
	if r > 0 {
		return models.DirectionPositive
	}
	return models.DirectionNegative
}

// alignReturns keeps returns whose timestamps appear in both inputs, in the
// order of a.
func alignReturns(a, b []LogReturn) (ra, rb []float64, times []time.Time) {
	idx := make(map[int64]float64, len(b))
	for _, r := range b {
		idx[r.Time.Unix()] = r.Value
	}
	for _, r := range a {
		if v, ok := idx[r.Time.Unix()]; ok {
			ra = append(ra, r.Value)
			rb = append(rb, v)
			times = append(times, r.Time)
		}
	}
	return ra, rb, times
}

func clamp(r float64) float64 {
	return math.Max(-1, math.Min(1, r))
}
