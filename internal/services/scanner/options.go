package scanner

import (
	"runtime"

	"PatternScope/internal/domain/repository"
	"PatternScope/internal/services/similarity"
	"PatternScope/pkg/logger"
)

const (
	DefaultMinBars  = 100
	DefaultWarnBars = 1000
)

type Option func(*Scanner)

func WithProfile(p similarity.Profile) Option {
	return func(s *Scanner) { s.profile = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithWorkers bounds the number of candidates scanned concurrently.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMinBars sets the candidate length below which a candidate is skipped.
func WithMinBars(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.minBars = n
		}
	}
}

// WithWarnBars sets the candidate length below which a warning is logged.
func WithWarnBars(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.warnBars = n
		}
	}
}

func defaultScanner() *Scanner {
	return &Scanner{
		profile:  similarity.DefaultProfile(),
		log:      logger.Nop(),
		workers:  runtime.GOMAXPROCS(0),
		minBars:  DefaultMinBars,
		warnBars: DefaultWarnBars,
	}
}
