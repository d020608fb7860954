package projector

import (
	"PatternScope/internal/domain/repository"
	"PatternScope/pkg/logger"
)

const (
	DefaultHorizon     = 20
	DefaultConcurrency = 4
)

type Option func(*Projector)

// WithHorizon sets the number of post-match bars requested per match.
func WithHorizon(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.horizon = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Projector) {
		if l != nil {
			p.log = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(p *Projector) { p.metrics = m }
}

// WithConcurrency bounds concurrent supplier calls.
func WithConcurrency(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.concurrency = n
		}
	}
}
