package features

import (
	"math"

	"PatternScope/internal/domain/models"
)

// Extract computes the window descriptors of bars. Degenerate inputs (fewer than
// 3 bars, zero first close) resolve to zero values instead of NaN.
func Extract(bars []models.Bar) models.Features {
	f := models.Features{UpRatio: 0.5}
	n := len(bars)
	if n == 0 {
		return f
	}
	closes := models.Closes(bars)
	first := closes[0]

	hi, lo := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	if first != 0 {
		f.TotalReturn = (closes[n-1] - first) / first
		f.MaxGain = (hi - first) / first
		f.MaxLoss = (lo - first) / first
	}

	f.Volatility = Stdev(PctReturns(closes))
	f.TrendSlope = Slope(closes)
	f.DirectionChanges = DirectionChanges(closes)
	if n > 1 {
		up := 0
		for i := 1; i < n; i++ {
			if closes[i] > closes[i-1] {
				up++
			}
		}
		f.UpRatio = float64(up) / float64(n-1)
	}
	return f
}

// PctReturns computes single-period returns r_t = C_t/C_{t-1} - 1.
// A zero previous close contributes a 0 return.
func PctReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/prev-1)
	}
	return out
}

// Stdev returns the n-1 standard deviation, 0 for fewer than 2 values.
func Stdev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	v := math.Sqrt(ss / float64(n-1))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Slope is the least-squares slope of ys against index 0..n-1.
func Slope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

// DirectionChanges counts positions where the sign of consecutive price changes differs.
// A flat step has its own sign, so up-flat-up counts two changes.
func DirectionChanges(closes []float64) int {
	if len(closes) < 3 {
		return 0
	}
	count := 0
	prev := sign(closes[1] - closes[0])
	for i := 2; i < len(closes); i++ {
		s := sign(closes[i] - closes[i-1])
		if s != prev {
			count++
		}
		prev = s
	}
	return count
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
