package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	strutil "assetregistry/pkg/platform/strings"
)

// StoreBackend selects the registry store implementation.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the complete server configuration, read from the environment.
type Config struct {
	Addr            string        `env:"REGISTRY_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`

	Store    StoreConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Relay    RelayConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
	Database DatabaseConfig
}

type StoreConfig struct {
	Backend    StoreBackend `env:"REGISTRY_STORE" envDefault:"memory"`
	SQLitePath string       `env:"SQLITE_PATH" envDefault:"registry.db"`
}

// DatabaseConfig configures the Postgres driver and pool.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	Driver          string        `env:"DB_DRIVER" envDefault:"pgx"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type AuthConfig struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"assetregistry"`
	TokenTTL      time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL           string        `env:"REDIS_URL"`
	EventsChannel string        `env:"REDIS_EVENTS_CHANNEL" envDefault:"registry.events"`
	PoolSize      int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns  int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout   time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout   time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout  time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the event producer. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic             string        `env:"KAFKA_TOPIC" envDefault:"registry.events"`
	ClientID          string        `env:"KAFKA_CLIENT_ID" envDefault:"assetregistry"`
	CreateTopic       bool          `env:"KAFKA_CREATE_TOPIC" envDefault:"true"`
	Partitions        int32         `env:"KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	DialTimeout       time.Duration `env:"KAFKA_DIAL_TIMEOUT" envDefault:"10s"`
	DeliveryTimeout   time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"30s"`
}

type RelayConfig struct {
	Interval         time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
	BatchSize        int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	FailureThreshold int           `env:"RELAY_FAILURE_THRESHOLD" envDefault:"5"`
	Cooldown         time.Duration `env:"RELAY_COOLDOWN" envDefault:"30s"`
	StreamBuffer     int           `env:"RELAY_STREAM_BUFFER" envDefault:"256"`
}

type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"json"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

type TracingConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"assetregistry"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strutil.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
		if d := c.Database.Driver; d != "" && d != "pgx" && d != "postgres" {
			errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q (pgx|postgres)", d))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRY_STORE %q", c.Store.Backend))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Relay.BatchSize <= 0 {
		errs = append(errs, errors.New("RELAY_BATCH_SIZE must be positive"))
	}
	if c.Relay.Interval <= 0 {
		errs = append(errs, errors.New("RELAY_INTERVAL must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
