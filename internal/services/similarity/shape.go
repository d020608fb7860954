// Package similarity scores a candidate window against a reference window.
// Every metric maps into [0,1]; unequal lengths, empty inputs and degenerate
// statistics contribute 0 rather than NaN.
package similarity

import "math"

// DeviationBound is the assumed maximum per-point deviation, in percent, used to
// scale Euclidean and DTW distances into a similarity.
const DeviationBound = 100.0

// CorrelationVariant selects how Pearson r is mapped into [0,1].
type CorrelationVariant int

const (
	// CorrPositive keeps only positive correlation: max(0, r).
	CorrPositive CorrelationVariant = iota
	// CorrAbsolute treats inverse shapes as similar: |r|.
	CorrAbsolute
)

// CosineVariant selects how cosine similarity is mapped into [0,1].
type CosineVariant int

const (
	// CosShifted maps [-1,1] linearly: (cos+1)/2.
	CosShifted CosineVariant = iota
	// CosAbsolute uses |cos|.
	CosAbsolute
)

// Variants pairs a correlation and a cosine mapping.
type Variants struct {
	Correlation CorrelationVariant
	Cosine      CosineVariant
}

var (
	// SignedShape distinguishes a pattern from its mirror image.
	SignedShape = Variants{Correlation: CorrPositive, Cosine: CosShifted}
	// UnsignedShape scores a mirror image as similar.
	UnsignedShape = Variants{Correlation: CorrAbsolute, Cosine: CosAbsolute}
	// MixedShape ignores the sign of correlation but not of cosine.
	MixedShape = Variants{Correlation: CorrAbsolute, Cosine: CosShifted}
)

// Euclidean returns max(0, 1 - d/sqrt(L*k^2)).
func Euclidean(a, b []float64, k float64) float64 {
	if len(a) != len(b) || len(a) == 0 || k <= 0 {
		return 0
	}
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	bound := math.Sqrt(float64(len(a)) * k * k)
	return clamp01(1 - math.Sqrt(ss)/bound)
}

// Correlation returns the Pearson coefficient of a and b mapped by variant.
// The positive variant needs at least 3 points, the absolute one at least 2.
func Correlation(a, b []float64, variant CorrelationVariant) float64 {
	minLen := 2
	if variant == CorrPositive {
		minLen = 3
	}
	if len(a) != len(b) || len(a) < minLen {
		return 0
	}
	r := pearson(a, b)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	if variant == CorrAbsolute {
		return clamp01(math.Abs(r))
	}
	return clamp01(r)
}

// Cosine returns the cosine similarity of a and b mapped by variant.
func Cosine(a, b []float64, variant CosineVariant) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(c) {
		return 0
	}
	if variant == CosAbsolute {
		return clamp01(math.Abs(c))
	}
	return clamp01((c + 1) / 2)
}

// pearson returns NaN when either input has zero variance.
func pearson(a, b []float64) float64 {
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n
	var cov, va, vb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(va*vb)
}

// Pearson is the raw coefficient in [-1,1]; 0 for degenerate inputs.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	r := pearson(a, b)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
