//go:build wireinject
// +build wireinject

package di

import (
	"PatternScope/pkg/config"
	"PatternScope/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup releases storage, cache and producer resources.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideStorage,
		ProvideCache,
		ProvideSeriesProvider,
		ProvideKafkaProducer,
		ProvideResultPublisher,
		ProvideKafkaConsumer,

		// Use cases
		ProvidePatternAnalysis,
		ProvideSeriesUseCase,
		ProvideImportUseCase,
		ProvideCorrelationUseCase,
		ProvideKafkaAnalysisHandler,

		// HTTP
		ProvideRateLimiter,
		ProvidePatternsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
