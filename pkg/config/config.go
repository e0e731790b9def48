// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Store, Postgres, Kafka, Redis, Ingest, Preview, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OCR failure policies.
const (
	OCRFailureAbort = "abort"
	OCRFailureSkip  = "skip"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Search   SearchConfig   `yaml:"search"`
	Preview  PreviewConfig  `yaml:"preview"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// CorpusConfig locates the source documents and their rendered previews.
// Both trees are organised as one subdirectory per category.
type CorpusConfig struct {
	Root        string   `yaml:"root"`
	PreviewRoot string   `yaml:"previewRoot"`
	Extensions  []string `yaml:"extensions"`
}

// StoreConfig selects the DocumentStore backend.
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngested string `yaml:"documentIngested"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IngestConfig controls the ingestion worker pool and per-file limits.
type IngestConfig struct {
	Workers          int           `yaml:"workers"`
	FileTimeout      time.Duration `yaml:"fileTimeout"`
	OCRFailurePolicy string        `yaml:"ocrFailurePolicy"`
	MaxUploadBytes   int64         `yaml:"maxUploadBytes"`
	// UploadsPerMinute caps uploads per client address; 0 disables the cap.
	UploadsPerMinute int `yaml:"uploadsPerMinute"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// PreviewConfig controls the page-preview rasterizer.
type PreviewConfig struct {
	Pdftoppm   string  `yaml:"pdftoppm"`
	DPI        int     `yaml:"dpi"`
	Contrast   float64 `yaml:"contrast"`
	Sharpen    bool    `yaml:"sharpen"`
	Regenerate bool    `yaml:"regenerate"`
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

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is validated.
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

// Validate reports configuration values no component can run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlitePath is required for the %s driver", DriverSQLite)
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Ingest.OCRFailurePolicy {
	case OCRFailureAbort, OCRFailureSkip:
	default:
		return fmt.Errorf("unknown ocr failure policy %q", c.Ingest.OCRFailurePolicy)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Corpus.Root == "" {
		return fmt.Errorf("corpus.root is required")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Corpus: CorpusConfig{
			Root:        "corpus",
			PreviewRoot: "previews",
			Extensions:  []string{".pdf"},
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/documents.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docdigitizer",
			User:            "docdigitizer",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docdigitizer-group",
			Topics: KafkaTopics{
				DocumentIngested: "document-ingested",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Ingest: IngestConfig{
			Workers:          8,
			FileTimeout:      5 * time.Minute,
			OCRFailurePolicy: OCRFailureAbort,
			MaxUploadBytes:   64 << 20,
			UploadsPerMinute: 30,
		},
		Search: SearchConfig{
			Timeout: 10 * time.Second,
		},
		Preview: PreviewConfig{
			Pdftoppm: "pdftoppm",
			DPI:      150,
			Contrast: 0.85,
			Sharpen:  true,
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

// applyEnvOverrides reads DD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setInt("DD_SERVER_PORT", &cfg.Server.Port)
	setString("DD_CORPUS_ROOT", &cfg.Corpus.Root)
	setString("DD_CORPUS_PREVIEW_ROOT", &cfg.Corpus.PreviewRoot)
	setString("DD_STORE_DRIVER", &cfg.Store.Driver)
	setString("DD_STORE_SQLITE_PATH", &cfg.Store.SQLitePath)
	setString("DD_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("DD_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("DD_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("DD_POSTGRES_USER", &cfg.Postgres.User)
	setString("DD_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("DD_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("DD_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("DD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("DD_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("DD_REDIS_ADDR", &cfg.Redis.Addr)
	setString("DD_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("DD_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	setInt("DD_INGEST_WORKERS", &cfg.Ingest.Workers)
	setInt("DD_INGEST_UPLOADS_PER_MINUTE", &cfg.Ingest.UploadsPerMinute)
	setDuration("DD_INGEST_FILE_TIMEOUT", &cfg.Ingest.FileTimeout)
	setString("DD_INGEST_OCR_FAILURE_POLICY", &cfg.Ingest.OCRFailurePolicy)
	setString("DD_PREVIEW_PDFTOPPM", &cfg.Preview.Pdftoppm)
	setBool("DD_PREVIEW_REGENERATE", &cfg.Preview.Regenerate)
	setString("DD_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("DD_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("DD_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("DD_METRICS_PORT", &cfg.Metrics.Port)
}
