package similarity

import (
	"math"

	"PatternScope/internal/domain/models"
)

// Trend compares direction descriptors:
//
//	0.4/(1+10|Δreturn|) + 0.4/(1+100|Δslope|) + 0.2*(1-|Δup_ratio|)
func Trend(f1, f2 models.Features) float64 {
	ret := 1 / (1 + math.Abs(f1.TotalReturn-f2.TotalReturn)*10)
	slope := 1 / (1 + math.Abs(f1.TrendSlope-f2.TrendSlope)*100)
	up := 1 - math.Abs(f1.UpRatio-f2.UpRatio)
	return clamp01(ret*0.4 + slope*0.4 + up*0.2)
}

// Volatility compares dispersion and excursion descriptors:
//
//	0.3/(1+50|Δvol|) + 0.25/(1+10|Δgain|) + 0.25/(1+10|Δloss|) + 0.2/(1+0.1|Δdir|)
func Volatility(f1, f2 models.Features) float64 {
	vol := 1 / (1 + math.Abs(f1.Volatility-f2.Volatility)*50)
	gain := 1 / (1 + math.Abs(f1.MaxGain-f2.MaxGain)*10)
	loss := 1 / (1 + math.Abs(f1.MaxLoss-f2.MaxLoss)*10)
	dir := 1 / (1 + math.Abs(float64(f1.DirectionChanges-f2.DirectionChanges))*0.1)
	return clamp01(vol*0.3 + gain*0.25 + loss*0.25 + dir*0.2)
}
