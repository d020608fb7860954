package models

// Requests for pattern HTTP endpoints. Defined in domain for reuse by the Kafka handler.
// Omitted analysis fields fall back to the analysis section of the config.

type SeriesKeyRequest struct {
	Source   string `json:"source" validate:"required"`
	Interval string `json:"interval" validate:"omitempty,oneof=M1 M5 M15 M30 H1 H4 D1"`
}

type PatternRequest struct {
	Source         string             `json:"source" validate:"required"`
	Interval       string             `json:"interval" default:"H4" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Length         int                `json:"length" validate:"omitempty,gte=2,lte=500"`
	Candidates     []SeriesKeyRequest `json:"candidates" validate:"omitempty,dive"`
	CandidateBars  int                `json:"candidate_bars" validate:"omitempty,gte=1,lte=50000"`
	MinScore       *float64           `json:"min_score" default:"0.3" validate:"gte=0,lte=1"`
	TopK           int                `json:"top_k" validate:"omitempty,gte=1,lte=500"`
	Step           int                `json:"step" default:"1" validate:"gte=1,lte=1000"`
	ExcludeOverlap *bool              `json:"exclude_overlap" default:"true"`
	Method         string             `json:"method" validate:"omitempty,oneof=feature_aware geometric"`
	Shape          string             `json:"shape" validate:"omitempty,oneof=signed unsigned mixed"`
	Normalization  string             `json:"normalization" validate:"omitempty,oneof=percent_change zscore minmax"`
	DTWWindow      *int               `json:"dtw_window" validate:"omitempty,gte=0"`
	Horizon        int                `json:"horizon" validate:"omitempty,gte=1,lte=500"`
}

type SeriesRequest struct {
	Source   string `query:"source" json:"source" validate:"required"`
	Interval string `query:"interval" json:"interval" default:"H4" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Count    int    `query:"count" json:"count" default:"500" validate:"gte=1,lte=50000"`
}

type ImportRequest struct {
	Source   string `query:"source" validate:"required"`
	Interval string `query:"interval" default:"H4" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
}

type CorrelationRequest struct {
	Source   string `query:"source" json:"source" validate:"required"`
	Against  string `query:"against" json:"against" validate:"required,nefield=Source"`
	Interval string `query:"interval" json:"interval" default:"H4" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Count    int    `query:"count" json:"count" default:"1000" validate:"gte=10,lte=50000"`
	Window   int    `query:"window" json:"window" default:"20" validate:"gte=3,lte=1000"`
}

// CorrelationRankRequest ranks every catalog series against Source.
// Intervals lists the timeframes to rank, defaulting to Interval alone.
type CorrelationRankRequest struct {
	Source      string   `query:"source" json:"source" validate:"required"`
	Interval    string   `query:"interval" json:"interval" default:"H4" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Count       int      `query:"count" json:"count" default:"5000" validate:"gte=10,lte=50000"`
	Intervals   []string `query:"intervals" json:"intervals" validate:"omitempty,dive,oneof=M1 M5 M15 M30 H1 H4 D1"`
	Top         int      `query:"top" json:"top" validate:"omitempty,gte=1,lte=500"`
	MinAbsCoeff float64  `query:"min_abs" json:"min_abs" validate:"gte=0,lte=1"`
}
