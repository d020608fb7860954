package models

import "time"

// Features are scalar descriptors of a window of bars.
type Features struct {
	TotalReturn      float64 `json:"total_return"`
	Volatility       float64 `json:"volatility"`
	MaxGain          float64 `json:"max_gain"`
	MaxLoss          float64 `json:"max_loss"`
	TrendSlope       float64 `json:"trend_slope"`
	DirectionChanges int     `json:"direction_changes"`
	UpRatio          float64 `json:"up_ratio"`
}

// ReferencePattern is the fixed window searched for. Built once per run, immutable afterward.
type ReferencePattern struct {
	Source     string    `json:"source"`
	Interval   string    `json:"interval"`
	Bars       []Bar     `json:"-"`
	Normalized []float64 `json:"normalized"`
	Features   Features  `json:"features"`
}

// Len returns the window length L.
func (r ReferencePattern) Len() int { return len(r.Bars) }

// StartTime returns the timestamp of the first reference bar.
func (r ReferencePattern) StartTime() time.Time {
	if len(r.Bars) == 0 {
		return time.Time{}
	}
	return r.Bars[0].Time
}

// EndTime returns the timestamp of the last reference bar.
func (r ReferencePattern) EndTime() time.Time {
	if len(r.Bars) == 0 {
		return time.Time{}
	}
	return r.Bars[len(r.Bars)-1].Time
}

// CandidateSeries is a read-only series scanned for windows resembling the reference.
// Step and MinScore override the scan defaults when set.
type CandidateSeries struct {
	Source   string   `json:"source"`
	Interval string   `json:"interval"`
	Bars     []Bar    `json:"-"`
	Step     int      `json:"step,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// SubScores holds per-metric similarities. Only the metrics of the active method are set.
type SubScores struct {
	Shape       float64 `json:"shape,omitempty"`
	Trend       float64 `json:"trend,omitempty"`
	Volatility  float64 `json:"volatility,omitempty"`
	Euclidean   float64 `json:"euclidean,omitempty"`
	DTW         float64 `json:"dtw,omitempty"`
	Correlation float64 `json:"correlation,omitempty"`
	Cosine      float64 `json:"cosine,omitempty"`
}

// MatchResult is a retained candidate window.
type MatchResult struct {
	Source     string    `json:"source"`
	Interval   string    `json:"interval"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Length     int       `json:"length"`
	EndClose   float64   `json:"end_close"`
	Score      float64   `json:"score"`
	Scores     SubScores `json:"scores"`
	Method     string    `json:"method"`
}

// CandidateStatus tells whether a candidate was scanned.
type CandidateStatus string

const (
	CandidateComputed CandidateStatus = "computed"
	CandidateSkipped  CandidateStatus = "skipped"
)

// Skip reasons.
const (
	SkipInsufficientData           = "insufficient_data"
	SkipInsufficientAfterExclusion = "insufficient_after_exclusion"
	SkipNoData                     = "no_data"
)

// CandidateOutcome reports what happened to one candidate series during a scan.
type CandidateOutcome struct {
	Source    string          `json:"source"`
	Interval  string          `json:"interval"`
	Status    CandidateStatus `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Bars      int             `json:"bars"`
	Excluded  int             `json:"excluded"`
	Windows   int             `json:"windows"`
	Retained  int             `json:"retained"`
	BestScore float64         `json:"best_score"`
}

// ReferenceSummary is the serializable view of a reference pattern.
type ReferenceSummary struct {
	Source    string    `json:"source"`
	Interval  string    `json:"interval"`
	Length    int       `json:"length"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	LastClose float64   `json:"last_close"`
	Features  Features  `json:"features"`
}

// Summary returns the serializable view of r.
func (r ReferencePattern) Summary() ReferenceSummary {
	s := ReferenceSummary{
		Source:    r.Source,
		Interval:  r.Interval,
		Length:    r.Len(),
		StartTime: r.StartTime(),
		EndTime:   r.EndTime(),
		Features:  r.Features,
	}
	if n := len(r.Bars); n > 0 {
		s.LastClose = r.Bars[n-1].Close
	}
	return s
}

// ScanReport is the result of one scan.
type ScanReport struct {
	Reference     ReferenceSummary   `json:"reference"`
	Method        string             `json:"method"`
	Normalization string             `json:"normalization"`
	MinScore      float64            `json:"min_score"`
	TopK          int                `json:"top_k"`
	Matches       []MatchResult      `json:"matches"`
	Candidates    []CandidateOutcome `json:"candidates"`
	Windows       int                `json:"windows"`
	Duration      time.Duration      `json:"duration_ns"`
}
