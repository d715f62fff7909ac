// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, record stores, Kafka, Redis, Encoder, Indexer,
// Search, Ingestion, etc.).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver    string `yaml:"driver"` // sqlite | postgres
	BatchSize int    `yaml:"batchSize"`
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

// SQLiteConfig holds the path of the embedded record database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RecordsIngested string `yaml:"recordsIngested"`
	IndexEvents     string `yaml:"indexEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EncoderConfig selects and tunes the dense text encoder.
type EncoderConfig struct {
	Provider    string        `yaml:"provider"` // hashing | openai | ollama
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	BatchSize   int           `yaml:"batchSize"`
	Concurrency int           `yaml:"concurrency"`
	CacheSize   int           `yaml:"cacheSize"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LexicalConfig controls the TF-IDF vocabulary.
type LexicalConfig struct {
	MaxFeatures     int     `yaml:"maxFeatures"`
	NGramMax        int     `yaml:"ngramMax"`
	MinDocFreq      int     `yaml:"minDocFreq"`
	MaxDocFreqRatio float64 `yaml:"maxDocFreqRatio"`
}

// IndexerConfig controls snapshot building, persistence and reload.
type IndexerConfig struct {
	DataDir         string        `yaml:"dataDir"`
	PersistTimeout  time.Duration `yaml:"persistTimeout"`
	RetainSnapshots int           `yaml:"retainSnapshots"`
	MaxTextChars    int           `yaml:"maxTextChars"`
	LoadOnStartup   bool          `yaml:"loadOnStartup"`
	RebuildOnIngest bool          `yaml:"rebuildOnIngest"`
	LockTimeout     time.Duration `yaml:"lockTimeout"`
}

// SearchConfig controls query limits and the default fusion weights.
type SearchConfig struct {
	MaxResults     int     `yaml:"maxResults"`
	DefaultLimit   int     `yaml:"defaultLimit"`
	SimilarLimit   int     `yaml:"similarLimit"`
	SemanticWeight float64 `yaml:"semanticWeight"`
	KeywordWeight  float64 `yaml:"keywordWeight"`
	MaxWeight      float64 `yaml:"maxWeight"`
}

// IngestionConfig controls the CSV pipeline and record cleaning rules.
type IngestionConfig struct {
	DataDir              string `yaml:"dataDir"`
	MinDescriptionLength int    `yaml:"minDescriptionLength"`
	MaxDescriptionLength int    `yaml:"maxDescriptionLength"`
	MaxTitleLength       int    `yaml:"maxTitleLength"`
	MaxGenres            int    `yaml:"maxGenres"`
}

// RateLimitConfig sets per-client request budgets.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	RebuildsPerWindow int           `yaml:"rebuildsPerWindow"`
	Window            time.Duration `yaml:"window"`
}

// CORSConfig controls the allowed browser origins.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging of index builds.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file from the
// working directory when present, and applies environment-variable overrides.
// It returns a Config populated with defaults for any missing values.
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
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Encoder.Provider {
	case "hashing", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("encoder.provider: unknown provider %q", c.Encoder.Provider))
	}
	if c.Encoder.Provider == "hashing" && c.Encoder.Dimension <= 0 {
		errs = append(errs, errors.New("encoder.dimension must be positive"))
	}
	if c.Encoder.BatchSize <= 0 {
		errs = append(errs, errors.New("encoder.batchSize must be positive"))
	}
	if c.Lexical.MaxFeatures <= 0 {
		errs = append(errs, errors.New("lexical.maxFeatures must be positive"))
	}
	if c.Lexical.NGramMax < 1 {
		errs = append(errs, errors.New("lexical.ngramMax must be at least 1"))
	}
	if c.Lexical.MaxDocFreqRatio <= 0 || c.Lexical.MaxDocFreqRatio > 1 {
		errs = append(errs, errors.New("lexical.maxDocFreqRatio must be in (0, 1]"))
	}
	if c.Indexer.DataDir == "" {
		errs = append(errs, errors.New("indexer.dataDir is required"))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, errors.New("search.maxResults must be positive"))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		errs = append(errs, errors.New("search.defaultLimit must be in [1, maxResults]"))
	}
	for name, w := range map[string]float64{
		"search.semanticWeight": c.Search.SemanticWeight,
		"search.keywordWeight":  c.Search.KeywordWeight,
	} {
		if math.IsNaN(w) || w < 0 || w > c.Search.MaxWeight {
			errs = append(errs, fmt.Errorf("%s must be in [0, %g]", name, c.Search.MaxWeight))
		}
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			BatchSize: 500,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "books",
			User:            "books",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/books.db",
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "book-search",
			Topics: KafkaTopics{
				RecordsIngested: "records-ingested",
				IndexEvents:     "index-events",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Encoder: EncoderConfig{
			Provider:    "hashing",
			Model:       "feature-hashing-v1",
			Dimension:   384,
			BaseURL:     "",
			BatchSize:   32,
			Concurrency: 4,
			CacheSize:   10000,
			Timeout:     30 * time.Second,
		},
		Lexical: LexicalConfig{
			MaxFeatures:     5000,
			NGramMax:        2,
			MinDocFreq:      1,
			MaxDocFreqRatio: 1.0,
		},
		Indexer: IndexerConfig{
			DataDir:         "data/index",
			PersistTimeout:  2 * time.Minute,
			RetainSnapshots: 2,
			MaxTextChars:    500,
			LoadOnStartup:   true,
			RebuildOnIngest: false,
			LockTimeout:     0,
		},
		Search: SearchConfig{
			MaxResults:     1000,
			DefaultLimit:   10,
			SimilarLimit:   5,
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			MaxWeight:      10,
		},
		Ingestion: IngestionConfig{
			DataDir:              "data",
			MinDescriptionLength: 20,
			MaxDescriptionLength: 5000,
			MaxTitleLength:       500,
			MaxGenres:            5,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 600,
			RebuildsPerWindow: 2,
			Window:            time.Minute,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setString("SP_STORE_DRIVER", &cfg.Store.Driver)
	setString("SP_SQLITE_PATH", &cfg.SQLite.Path)
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("SP_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SP_ENCODER_PROVIDER", &cfg.Encoder.Provider)
	setString("SP_ENCODER_MODEL", &cfg.Encoder.Model)
	setInt("SP_ENCODER_DIMENSION", &cfg.Encoder.Dimension)
	setString("SP_ENCODER_BASE_URL", &cfg.Encoder.BaseURL)
	setString("SP_ENCODER_API_KEY", &cfg.Encoder.APIKey)
	setString("SP_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setBool("SP_INDEXER_REBUILD_ON_INGEST", &cfg.Indexer.RebuildOnIngest)
	setFloat("SP_SEARCH_SEMANTIC_WEIGHT", &cfg.Search.SemanticWeight)
	setFloat("SP_SEARCH_KEYWORD_WEIGHT", &cfg.Search.KeywordWeight)
	setString("SP_INGESTION_DATA_DIR", &cfg.Ingestion.DataDir)
	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("SP_METRICS_PORT", &cfg.Metrics.Port)
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

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
