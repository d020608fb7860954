package models

import "time"

// Trend classifies a post-match trajectory.
type Trend string

const (
	TrendUp    Trend = "up"
	TrendRange Trend = "range"
	TrendDown  Trend = "down"
)

// Trends lists the classes in tie-break order.
var Trends = []Trend{TrendUp, TrendRange, TrendDown}

// Projection is the post-match outcome of one match.
type Projection struct {
	Match       MatchResult `json:"match"`
	Bars        int         `json:"bars"`
	Trajectory  []float64   `json:"trajectory"`
	FinalChange float64     `json:"final_change"`
	MaxGain     float64     `json:"max_gain"`
	MaxLoss     float64     `json:"max_loss"`
	Volatility  float64     `json:"volatility"`
	Trend       Trend       `json:"trend"`
}

// DiscardedMatch is a match left out of the ensemble.
type DiscardedMatch struct {
	Match  MatchResult `json:"match"`
	Reason string      `json:"reason"`
}

// RiskAssessment buckets the ensemble dispersion. Descriptive only.
type RiskAssessment struct {
	VolatilityLevel string `json:"volatility_level"`
	DrawdownLevel   string `json:"drawdown_level"`
}

// EnsembleForecast is the similarity-weighted aggregate of projections.
type EnsembleForecast struct {
	Horizon            int               `json:"horizon"`
	Projections        []Projection      `json:"projections"`
	Discarded          []DiscardedMatch  `json:"discarded,omitempty"`
	WeightedChange     float64           `json:"weighted_change"`
	WeightedMaxGain    float64           `json:"weighted_max_gain"`
	WeightedMaxLoss    float64           `json:"weighted_max_loss"`
	WeightedVolatility float64           `json:"weighted_volatility"`
	TrendProbabilities map[Trend]float64 `json:"trend_probabilities"`
	MostLikely         Trend             `json:"most_likely,omitempty"`
	MeanTrajectory     []float64         `json:"mean_trajectory"`
	Risk               RiskAssessment    `json:"risk"`
}

// AnalysisReport bundles a scan and its forecast.
type AnalysisReport struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Scan      *ScanReport       `json:"scan"`
	Forecast  *EnsembleForecast `json:"forecast,omitempty"`
}

// Correlation strength and direction labels.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
	StrengthNone     = "none"

	DirectionPositive = "positive"
	DirectionNegative = "negative"
)

// CorrelationResult is the log-return correlation of two aligned series.
// Overlap counts the aligned returns.
type CorrelationResult struct {
	Source      string    `json:"source"`
	Against     string    `json:"against"`
	Interval    string    `json:"interval"`
	Overlap     int       `json:"overlap"`
	Coefficient float64   `json:"coefficient"`
	RSquared    float64   `json:"r_squared"`
	PValue      float64   `json:"p_value"`
	Strength    string    `json:"strength"`
	Direction   string    `json:"direction"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Window      int       `json:"window"`
	Rolling     []float64 `json:"rolling,omitempty"`
}

// CorrelationRanking lists catalog series ordered by |coefficient| against
// one reference series.
type CorrelationRanking struct {
	Source   string              `json:"source"`
	Interval string              `json:"interval"`
	Results  []CorrelationResult `json:"results"`
	Skipped  []RankingSkip       `json:"skipped,omitempty"`
}

type RankingSkip struct {
	Series SeriesKey `json:"series"`
	Reason string    `json:"reason"`
}
