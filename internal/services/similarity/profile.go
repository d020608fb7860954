package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"PatternScope/internal/domain/models"
	"PatternScope/internal/services/normalize"
)

// Method names a scoring formula.
type Method string

const (
	// FeatureAware blends shape correlation with trend and volatility descriptors.
	FeatureAware Method = "feature_aware"
	// Geometric blends Euclidean, cosine, correlation and DTW on the normalized sequence.
	Geometric Method = "geometric"
)

const (
	ShapeSigned   = "signed"
	ShapeUnsigned = "unsigned"
	ShapeMixed    = "mixed"
)

// Fallback heuristic thresholds for feature-aware scoring.
const (
	fallbackShapeBelow = 0.3
	fallbackFeatAbove  = 0.5
	fallbackDiscount   = 0.8
)

var ErrInvalidProfile = errors.New("similarity: invalid profile")

// Window is one side of a comparison: the normalized closes and the raw-bar features.
type Window struct {
	Normalized []float64
	Features   models.Features
}

// Profile is the scorer configuration.
type Profile struct {
	Method        Method
	Variants      Variants
	Normalization normalize.Method
	DTW           DTWOptions
}

// DefaultProfile is feature-aware scoring over z-scored closes with signed shape metrics.
func DefaultProfile() Profile {
	return Profile{
		Method:        FeatureAware,
		Variants:      SignedShape,
		Normalization: normalize.ZScore,
	}
}

// ParseProfile validates names and fills per-method defaults. Empty strings select
// the method's default.
func ParseProfile(method, shape, normalization string, dtwWindow int) (Profile, error) {
	p := Profile{}
	switch Method(strings.ToLower(strings.TrimSpace(method))) {
	case "", FeatureAware:
		p.Method = FeatureAware
		p.Variants = SignedShape
		p.Normalization = normalize.ZScore
	case Geometric:
		p.Method = Geometric
		p.Variants = UnsignedShape
		p.Normalization = normalize.PercentChange
	default:
		return Profile{}, fmt.Errorf("%w: method %q", ErrInvalidProfile, method)
	}

	switch strings.ToLower(strings.TrimSpace(shape)) {
	case "":
	case ShapeSigned:
		p.Variants = SignedShape
	case ShapeUnsigned:
		p.Variants = UnsignedShape
	case ShapeMixed:
		p.Variants = MixedShape
	default:
		return Profile{}, fmt.Errorf("%w: shape %q", ErrInvalidProfile, shape)
	}

	if normalization != "" {
		m, err := normalize.ParseMethod(strings.ToLower(strings.TrimSpace(normalization)))
		if err != nil {
			return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
		p.Normalization = m
	}

	if dtwWindow < 0 {
		return Profile{}, fmt.Errorf("%w: dtw window %d", ErrInvalidProfile, dtwWindow)
	}
	p.DTW.Window = dtwWindow
	return p, nil
}

// Validate reports an unusable profile.
func (p Profile) Validate() error {
	switch p.Method {
	case FeatureAware, Geometric:
	default:
		return fmt.Errorf("%w: method %q", ErrInvalidProfile, p.Method)
	}
	if _, err := normalize.ParseMethod(string(p.Normalization)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if p.DTW.Window < 0 {
		return fmt.Errorf("%w: dtw window %d", ErrInvalidProfile, p.DTW.Window)
	}
	return nil
}

// Score returns the combined similarity of cand to ref and the sub-scores of the
// active method.
func (p Profile) Score(ref, cand Window) (float64, models.SubScores) {
	if p.Method == Geometric {
		return p.geometric(ref.Normalized, cand.Normalized)
	}
	return p.featureAware(ref, cand)
}

func (p Profile) featureAware(ref, cand Window) (float64, models.SubScores) {
	shape := Correlation(ref.Normalized, cand.Normalized, p.Variants.Correlation)
	trend := Trend(ref.Features, cand.Features)
	vol := Volatility(ref.Features, cand.Features)

	score := shape*0.5 + trend*0.3 + vol*0.2
	if shape < fallbackShapeBelow && trend > fallbackFeatAbove && vol > fallbackFeatAbove {
		score = math.Max(score, fallbackDiscount*(trend*0.5+vol*0.5))
	}
	return clamp01(score), models.SubScores{
		Shape:       shape,
		Trend:       trend,
		Volatility:  vol,
		Correlation: shape,
	}
}

func (p Profile) geometric(a, b []float64) (float64, models.SubScores) {
	s := models.SubScores{
		Euclidean:   Euclidean(a, b, DeviationBound),
		Cosine:      Cosine(a, b, p.Variants.Cosine),
		Correlation: Correlation(a, b, p.Variants.Correlation),
		DTW:         DTWSimilarity(a, b, p.DTW),
	}
	score := s.Euclidean*0.3 + s.Cosine*0.3 + s.Correlation*0.2 + s.DTW*0.2
	return clamp01(score), s
}

// Describe renders the active sub-scores compactly, for example
// "shape=0.912 trend=0.801 vol=0.744".
func (p Profile) Describe(s models.SubScores) string {
	if p.Method == Geometric {
		return fmt.Sprintf("euclid=%.3f cos=%.3f corr=%.3f dtw=%.3f", s.Euclidean, s.Cosine, s.Correlation, s.DTW)
	}
	return fmt.Sprintf("shape=%.3f trend=%.3f vol=%.3f", s.Shape, s.Trend, s.Volatility)
}
