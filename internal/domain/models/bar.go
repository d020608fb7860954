package models

import "time"

// Bar is one OHLCV record of a price series.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SeriesKey identifies a series by source id (symbol) and sampling interval.
type SeriesKey struct {
	Source   string `json:"source"`
	Interval string `json:"interval"`
}

func (k SeriesKey) String() string { return k.Source + "@" + k.Interval }

// Closes returns the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
