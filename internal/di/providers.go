package di

import (
	"context"
	"fmt"
	"time"

	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/handler/api"
	internalrepo "PatternScope/internal/repository"
	svcmetrics "PatternScope/internal/service/metrics"
	"PatternScope/internal/service/ratelimit"
	"PatternScope/internal/usecase"
	"PatternScope/pkg/cache"
	pkgch "PatternScope/pkg/clickhouse"
	"PatternScope/pkg/config"
	xhttp "PatternScope/pkg/http"
	"PatternScope/pkg/http/middleware"
	pkgkafka "PatternScope/pkg/kafka"
	applogger "PatternScope/pkg/logger"
	"PatternScope/pkg/metrics"
	"PatternScope/pkg/server"
)

// Storage groups the capabilities of the configured bar backend. Catalog and
// Writer are nil when the backend does not support them.
type Storage struct {
	Provider domrepo.SeriesProvider
	Catalog  domrepo.SeriesCatalog
	Writer   domrepo.SeriesWriter
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the bars table exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, pkgch.BarsSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStorage opens the backend named by storage.backend.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (*Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "clickhouse":
		client, err := ProvideClickHouseClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		store := internalrepo.NewCHSeriesStore(client, cfg.ClickHouse.BatchSize, l)
		cleanup := func() {
			if err := client.Close(); err != nil {
				l.Warn("clickhouse close error", applogger.Error(err))
			}
		}
		return &Storage{Provider: store, Catalog: store, Writer: store}, cleanup, nil

	case "http":
		gw := cfg.Storage.Gateway
		opts := []xhttp.ClientOption{xhttp.WithBaseURL(gw.BaseURL), xhttp.WithTimeout(gw.Timeout)}
		if gw.APIKey != "" {
			opts = append(opts, xhttp.WithHeader("X-API-Key", gw.APIKey))
		}
		p := internalrepo.NewHTTPSeriesProvider(xhttp.NewClient(opts...), gw.RPS, gw.Burst, gw.MaxElapsed, l)
		return &Storage{Provider: p, Catalog: p}, func() {}, nil

	default:
		store, err := internalrepo.NewSQLiteSeriesStore(cfg.Storage.SQLite.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				l.Warn("sqlite close error", applogger.Error(err))
			}
		}
		return &Storage{Provider: store, Catalog: store, Writer: store}, cleanup, nil
	}
}

// ProvideCache creates the read cache. It returns nil when caching is disabled.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	c := cfg.Cache
	if !c.Enabled {
		return nil, func() {}, nil
	}

	var svc cache.Service
	switch c.Type {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(c.Redis.Host),
			cache.WithRedisPort(c.Redis.Port),
			cache.WithRedisPassword(c.Redis.Password),
			cache.WithRedisDB(c.Redis.DB),
			cache.WithRedisPool(c.Redis.PoolSize, 2, 3*time.Second),
			cache.WithRedisPrefix(c.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
		if c.Type == "layered" {
			svc = cache.NewLayeredCache(rc, c.MemoryMaxSize, cache.WithL1TTL(c.TTL/5))
		}
	default:
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(c.MemoryMaxSize),
			cache.WithMemoryDefaultTTL(c.TTL),
		)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideSeriesProvider decorates the backend with the cache when one is configured.
func ProvideSeriesProvider(st *Storage, c cache.Service, cfg *config.Config, l *applogger.Logger) domrepo.SeriesProvider {
	if c == nil {
		return st.Provider
	}
	return internalrepo.NewCachedSeriesProvider(st.Provider, c, cfg.Cache.TTL, l)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideResultPublisher publishes forecast reports when a producer is available.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer. It returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvidePatternAnalysis(
	provider domrepo.SeriesProvider,
	st *Storage,
	publisher domrepo.ResultPublisher,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PatternAnalysisUseCase {
	return usecase.NewPatternAnalysisUseCase(provider, st.Catalog, publisher, m, cfg.Analysis, l)
}

func ProvideSeriesUseCase(provider domrepo.SeriesProvider, st *Storage) *usecase.SeriesUseCase {
	return usecase.NewSeriesUseCase(provider, st.Catalog)
}

// ProvideImportUseCase invalidates cached reads after an import when the provider is cached.
func ProvideImportUseCase(provider domrepo.SeriesProvider, st *Storage, l *applogger.Logger) *usecase.ImportUseCase {
	inv, _ := provider.(usecase.SeriesInvalidator)
	return usecase.NewImportUseCase(st.Writer, inv, l)
}

func ProvideCorrelationUseCase(provider domrepo.SeriesProvider, st *Storage) *usecase.CorrelationUseCase {
	return usecase.NewCorrelationUseCase(provider, st.Catalog)
}

func ProvideKafkaAnalysisHandler(
	analysis *usecase.PatternAnalysisUseCase,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.KafkaAnalysisHandler {
	return usecase.NewKafkaAnalysisHandler(cfg.Kafka.RequestsTopic, analysis, m, l)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) middleware.Allower {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

func ProvidePatternsHandler(
	l *applogger.Logger,
	analysis *usecase.PatternAnalysisUseCase,
	series *usecase.SeriesUseCase,
	imports *usecase.ImportUseCase,
	correlation *usecase.CorrelationUseCase,
	limiter middleware.Allower,
) *api.PatternsEchoHandler {
	return api.NewPatternsEchoHandler(l, analysis, series, imports, correlation, limiter)
}

// ProvideHTTPServer builds the Echo server with the API routes mounted.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.PatternsEchoHandler) *xhttp.Server {
	path := cfg.Metrics.Path
	if !cfg.Metrics.Enabled {
		path = ""
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(path),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaAnalysisHandler,
) *server.App {
	return server.New(cfg, l, srv, consumer, kh)
}
