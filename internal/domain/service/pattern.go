package service

import (
	"context"
	"time"

	"PatternScope/internal/domain/models"
)

// ScanQuery holds the run-level scan policy. Candidates may override Step and MinScore.
type ScanQuery struct {
	MinScore    float64
	TopK        int
	Step        int
	ExcludeFrom *time.Time
}

// PatternScanner ranks candidate windows against a reference pattern.
type PatternScanner interface {
	NewReference(source, interval string, bars []models.Bar, length int) (models.ReferencePattern, error)
	Scan(ctx context.Context, ref models.ReferencePattern, candidates []models.CandidateSeries, q ScanQuery) (*models.ScanReport, error)
}

// FutureBarSupplier returns bars following a match's end timestamp.
type FutureBarSupplier interface {
	BarsAfter(ctx context.Context, m models.MatchResult, count int) ([]models.Bar, error)
}

// OutcomeProjector builds an ensemble forecast from ranked matches.
type OutcomeProjector interface {
	Project(ctx context.Context, matches []models.MatchResult, supplier FutureBarSupplier) (*models.EnsembleForecast, error)
}
