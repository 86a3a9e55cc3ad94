// Package config loads application configuration from YAML files with
// environment-variable overrides. Every subsystem gets a typed section with
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Batch     BatchConfig     `yaml:"batch"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of requests per minute allowed per client
	// address. Zero disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// Corpus sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// CorpusConfig says where records come from and where index files live.
// Basename is extended with .records, .index, .seg and .lock.
type CorpusConfig struct {
	Basename      string `yaml:"basename"`
	Source        string `yaml:"source"`
	Table         string `yaml:"table"`
	WriteSnapshot bool   `yaml:"writeSnapshot"`
}

// MatcherConfig tunes normalization and scoring.
type MatcherConfig struct {
	StopwordFile string `yaml:"stopwordFile"`
	// PenaltyThreshold > 0 enables the term-count penalty bonus.
	PenaltyThreshold int     `yaml:"penaltyThreshold"`
	PenaltyWeight    float64 `yaml:"penaltyWeight"`
}

// CacheConfig controls the two-level match result cache.
type CacheConfig struct {
	Enabled   bool `yaml:"enabled"`
	LocalSize int  `yaml:"localSize"`
	UseRedis  bool `yaml:"useRedis"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds broker settings for match analytics events.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	MatchEvents   string   `yaml:"matchEvents"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// BatchConfig sizes the batch matching worker pool.
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// AnalyticsConfig sizes the match event pipeline and the standalone
// aggregator service.
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotTable    string        `yaml:"snapshotTable"`
	Port             int           `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if path is non-empty), then applies BM_*
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Corpus.Source {
	case SourceFile, SourcePostgres:
	default:
		return fmt.Errorf("corpus.source must be %q or %q, got %q", SourceFile, SourcePostgres, c.Corpus.Source)
	}
	if c.Corpus.Basename == "" {
		return fmt.Errorf("corpus.basename is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers)
	}
	if c.Analytics.BatchSize < 1 {
		return fmt.Errorf("analytics.batchSize must be positive, got %d", c.Analytics.BatchSize)
	}
	if c.Cache.Enabled && c.Cache.LocalSize < 1 {
		return fmt.Errorf("cache.localSize must be positive when the cache is enabled")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			Basename:      "data/dblp",
			Source:        SourceFile,
			Table:         "records",
			WriteSnapshot: true,
		},
		Matcher: MatcherConfig{
			PenaltyWeight: 0.01,
		},
		Cache: CacheConfig{
			Enabled:   true,
			LocalSize: 4096,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bibmatch",
			User:            "bibmatch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			MatchEvents:   "match-events",
			ConsumerGroup: "bibmatch-analytics",
		},
		Batch: BatchConfig{
			Workers: 8,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			SnapshotTable:    "analytics_snapshots",
			Port:             8090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BM_* environment variables into cfg.
func applyEnvOverrides(cfg *Config) {
	setInt("BM_SERVER_PORT", &cfg.Server.Port)
	setInt("BM_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	if v := os.Getenv("BM_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	setString("BM_CORPUS_BASENAME", &cfg.Corpus.Basename)
	setString("BM_CORPUS_SOURCE", &cfg.Corpus.Source)
	setString("BM_CORPUS_TABLE", &cfg.Corpus.Table)
	setString("BM_MATCHER_STOPWORD_FILE", &cfg.Matcher.StopwordFile)
	setBool("BM_CACHE_ENABLED", &cfg.Cache.Enabled)
	setBool("BM_CACHE_USE_REDIS", &cfg.Cache.UseRedis)
	setString("BM_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BM_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("BM_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BM_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BM_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BM_POSTGRES_USER", &cfg.Postgres.User)
	setString("BM_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("BM_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("BM_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("BM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("BM_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)
	setInt("BM_BATCH_WORKERS", &cfg.Batch.Workers)
	setInt("BM_ANALYTICS_PORT", &cfg.Analytics.Port)
	setString("BM_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BM_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("BM_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("BM_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
