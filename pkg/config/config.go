package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PatternScope/pkg/util"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development"`
	Server      ServerConfig    `yaml:"server"`
	Logger      LoggerConfig    `yaml:"logger"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Storage     StorageConfig   `yaml:"storage"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
	Cache       CacheConfig     `yaml:"cache"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Analysis    AnalysisConfig  `yaml:"analysis"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// RateLimitConfig throttles the pattern endpoints per client IP.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	RPS     float64 `yaml:"rps" default:"2"`
	Burst   int     `yaml:"burst" default:"5"`
}

// StorageConfig selects where bars are read from: sqlite, clickhouse or http.
type StorageConfig struct {
	Backend string        `yaml:"backend" default:"sqlite"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Gateway GatewayConfig `yaml:"gateway"`
}

type SQLiteConfig struct {
	Dir string `yaml:"dir" default:"market_data"`
}

// GatewayConfig describes a remote market-data HTTP gateway.
type GatewayConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	RPS        float64       `yaml:"rps" default:"5"`
	Burst      int           `yaml:"burst" default:"5"`
	MaxElapsed time.Duration `yaml:"max_elapsed" default:"30s"`
}

type ClickHouse struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"patternscope"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	BatchSize        int           `yaml:"batch_size" default:"2000"`
}

// CacheConfig wraps the series provider with a cache: memory, redis or layered.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	Type          string        `yaml:"type" default:"memory"`
	TTL           time.Duration `yaml:"ttl" default:"5m"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"256"`
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"patternscope:"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	RequestsTopic string   `yaml:"requests_topic" default:"pattern.requests"`
	ResultsTopic  string   `yaml:"results_topic" default:"pattern.results"`
	Compression   string   `yaml:"compression" default:"snappy"`
	RequiredAcks  int      `yaml:"required_acks" default:"-1"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"patternscope"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"pattern.requests.dlq"`
	} `yaml:"consumer"`
}

// AnalysisConfig holds engine defaults. Requests may override most of them.
type AnalysisConfig struct {
	Timeout               time.Duration `yaml:"timeout" default:"60s"`
	Method                string        `yaml:"method" default:"feature_aware"`
	Shape                 string        `yaml:"shape"`
	Normalization         string        `yaml:"normalization"`
	DTWWindow             int           `yaml:"dtw_window"`
	Length                int           `yaml:"length" default:"50"`
	TopK                  int           `yaml:"top_k" default:"10"`
	MinBars               int           `yaml:"min_bars" default:"100"`
	WarnBars              int           `yaml:"warn_bars" default:"1000"`
	Workers               int           `yaml:"workers" default:"8"`
	CandidateBars         int           `yaml:"candidate_bars" default:"5000"`
	FetchConcurrency      int           `yaml:"fetch_concurrency" default:"8"`
	Horizon               int           `yaml:"horizon" default:"20"`
	ProjectionConcurrency int           `yaml:"projection_concurrency" default:"4"`
	// Intervals restricts catalog auto-detection. Empty means the reference interval only.
	Intervals []string `yaml:"intervals"`
}

// Default returns a config populated only from default tags.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies
// environment overrides. A missing path means defaults only.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var c *Config
	if path == "" {
		c = Default()
	} else {
		var err error
		if c, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("SQLITE_DIR"); v != "" {
		c.Storage.SQLite.Dir = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.Storage.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		c.Storage.Gateway.APIKey = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Dir == "" {
			errs = append(errs, errors.New("storage.sqlite.dir is required"))
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			errs = append(errs, errors.New("clickhouse.host is required"))
		}
	case "http":
		if c.Storage.Gateway.BaseURL == "" {
			errs = append(errs, errors.New("storage.gateway.base_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be 'sqlite', 'clickhouse' or 'http', got '%s'", c.Storage.Backend))
	}

	if c.Cache.Enabled {
		switch c.Cache.Type {
		case "memory", "redis", "layered":
		default:
			errs = append(errs, fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, errors.New("cache.ttl must be positive"))
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when kafka is enabled"))
	}

	a := c.Analysis
	switch a.Method {
	case "feature_aware", "geometric":
	default:
		errs = append(errs, fmt.Errorf("analysis.method must be 'feature_aware' or 'geometric', got '%s'", a.Method))
	}
	switch a.Shape {
	case "", "signed", "unsigned", "mixed":
	default:
		errs = append(errs, fmt.Errorf("analysis.shape must be 'signed', 'unsigned' or 'mixed', got '%s'", a.Shape))
	}
	switch a.Normalization {
	case "", "zscore", "percent_change", "minmax":
	default:
		errs = append(errs, fmt.Errorf("analysis.normalization unknown: '%s'", a.Normalization))
	}
	if a.DTWWindow < 0 {
		errs = append(errs, errors.New("analysis.dtw_window must be >= 0"))
	}
	if a.MinBars < 0 || a.WarnBars < 0 {
		errs = append(errs, errors.New("analysis.min_bars and warn_bars must be >= 0"))
	}
	if a.Workers < 1 || a.FetchConcurrency < 1 || a.ProjectionConcurrency < 1 {
		errs = append(errs, errors.New("analysis concurrency settings must be >= 1"))
	}
	if a.Length < 2 {
		errs = append(errs, errors.New("analysis.length must be >= 2"))
	}
	if a.TopK < 1 {
		errs = append(errs, errors.New("analysis.top_k must be >= 1"))
	}
	if a.Horizon < 1 {
		errs = append(errs, errors.New("analysis.horizon must be >= 1"))
	}
	if a.CandidateBars < 1 {
		errs = append(errs, errors.New("analysis.candidate_bars must be >= 1"))
	}
	if a.Timeout <= 0 {
		errs = append(errs, errors.New("analysis.timeout must be positive"))
	}
	return errors.Join(errs...)
}
