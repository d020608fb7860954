package normalize

import (
	"errors"
	"fmt"
	"math"
)

// Method selects how a price series is made comparable.
type Method string

const (
	PercentChange Method = "percent_change"
	ZScore        Method = "zscore"
	MinMax        Method = "minmax"
)

// Default is the shape-comparison method: scale and level invariant.
const Default = ZScore

var ErrUnknownMethod = errors.New("normalize: unknown method")

// ParseMethod converts a config/request string to a Method. Empty means Default.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return Default, nil
	case PercentChange, ZScore, MinMax:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Apply normalizes xs with m. The result has the same length as xs, except for
// percent change on fewer than 2 points.
func Apply(m Method, xs []float64) ([]float64, error) {
	switch m {
	case PercentChange:
		return PctFromFirst(xs), nil
	case ZScore:
		return Standardize(xs), nil
	case MinMax:
		return Rescale(xs), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
}

// PctFromFirst returns (x_i - x_0) / x_0 * 100. Fewer than 2 points yield [0];
// a zero first price yields all zeros.
func PctFromFirst(xs []float64) []float64 {
	if len(xs) < 2 {
		return []float64{0}
	}
	out := make([]float64, len(xs))
	first := xs[0]
	if first == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - first) / first * 100
	}
	return out
}

// Standardize returns (x_i - mean) / std using the population std.
// A flat series yields all zeros.
func Standardize(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	mean, std := MeanStd(xs)
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mean) / std
	}
	return out
}

// Rescale maps xs onto [0,1]. A flat series yields all zeros.
func Rescale(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - lo) / span
	}
	return out
}

// MeanStd returns the mean and population standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
