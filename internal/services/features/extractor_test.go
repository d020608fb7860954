package features

import (
	"testing"
	"time"

	"PatternScope/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func barsFromCloses(closes ...float64) []models.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{Time: t0.Add(time.Duration(i) * 4 * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestExtractLinearSeries(t *testing.T) {
	f := Extract(barsFromCloses(100, 101, 102, 103, 104))

	assert.InDelta(t, 0.04, f.TotalReturn, 1e-12)
	assert.InDelta(t, 1.0, f.TrendSlope, 1e-12)
	assert.InDelta(t, 0.05, f.MaxGain, 1e-12)
	assert.InDelta(t, -0.01, f.MaxLoss, 1e-12)
	assert.Equal(t, 0, f.DirectionChanges)
	assert.Equal(t, 1.0, f.UpRatio)
	assert.Greater(t, f.Volatility, 0.0)
}

func TestExtractTurningPoints(t *testing.T) {
	f := Extract(barsFromCloses(10, 11, 10, 11, 11, 12))
	// diffs: + - + 0 +  -> sign changes at every step
	assert.Equal(t, 4, f.DirectionChanges)
	assert.InDelta(t, 0.6, f.UpRatio, 1e-12)
}

func TestExtractDegenerate(t *testing.T) {
	assert.Equal(t, models.Features{UpRatio: 0.5}, Extract(nil))

	one := Extract(barsFromCloses(5))
	assert.Equal(t, 0.5, one.UpRatio)
	assert.Equal(t, 0.0, one.Volatility)

	two := Extract(barsFromCloses(5, 6))
	assert.Equal(t, 0.0, two.Volatility)
	assert.Equal(t, 1.0, two.UpRatio)

	zero := Extract(barsFromCloses(0, 1, 2))
	assert.Equal(t, 0.0, zero.TotalReturn)
	assert.Equal(t, 0.0, zero.MaxGain)
}

func TestStdev(t *testing.T) {
	assert.InDelta(t, 1.2909944487358056, Stdev([]float64{1, 2, 3, 4}), 1e-12)
	assert.Equal(t, 0.0, Stdev([]float64{3}))
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, -2.0, Slope([]float64{10, 8, 6, 4}), 1e-12)
	assert.Equal(t, 0.0, Slope([]float64{7}))
}
