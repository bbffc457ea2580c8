// Package config loads service configuration from an optional YAML file
// and environment variables. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	URL      string `yaml:"url" env:"URL"`
	Host     string `yaml:"host" env:"HOST"`
	Port     string `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// DSN returns URL when set, otherwise a libpq-compatible connection string.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// MigrationURL returns a pgx5:// URL understood by the migrator.
func (d Database) MigrationURL() string {
	if d.URL != "" {
		return "pgx5://" + stripScheme(d.URL)
	}
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func stripScheme(u string) string {
	for _, p := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if len(u) > len(p) && u[:len(p)] == p {
			return u[len(p):]
		}
	}
	return u
}

type Redis struct {
	URL string `yaml:"url" env:"URL"`
}

type Kafka struct {
	Brokers       []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	ConsumerGroup string   `yaml:"consumer_group" env:"CONSUMER_GROUP"`
	PaymentTopic  string   `yaml:"payment_topic" env:"PAYMENT_TOPIC"`
	// Topics maps a domain event type to a topic; unmapped types use the type name.
	Topics map[string]string `yaml:"topics"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

type Credential struct {
	SigningKey string        `yaml:"signing_key" env:"SIGNING_KEY"`
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

type Registration struct {
	FeeBasisPoints     int64 `yaml:"fee_basis_points" env:"FEE_BASIS_POINTS"`
	RestockKitOnCancel bool  `yaml:"restock_kit_on_cancel" env:"RESTOCK_KIT_ON_CANCEL"`
}

type Cache struct {
	EventTTL time.Duration `yaml:"event_ttl" env:"EVENT_TTL"`
}

type Workers struct {
	OutboxPollInterval      time.Duration `yaml:"outbox_poll_interval" env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize         int           `yaml:"outbox_batch_size" env:"OUTBOX_BATCH_SIZE"`
	CredentialRetryInterval time.Duration `yaml:"credential_retry_interval" env:"CREDENTIAL_RETRY_INTERVAL"`
	CredentialBatchSize     int           `yaml:"credential_batch_size" env:"CREDENTIAL_BATCH_SIZE"`
	ConsumerPollInterval    time.Duration `yaml:"consumer_poll_interval" env:"CONSUMER_POLL_INTERVAL"`
}

type Tracing struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Config is the full service configuration.
type Config struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	HTTPPort    string `yaml:"http_port" env:"PORT"`
	GRPCPort    string `yaml:"grpc_port" env:"GRPC_PORT"`

	Database     Database     `yaml:"database" envPrefix:"DB_"`
	Redis        Redis        `yaml:"redis" envPrefix:"REDIS_"`
	Kafka        Kafka        `yaml:"kafka" envPrefix:"KAFKA_"`
	Auth         Auth         `yaml:"auth" envPrefix:"AUTH_"`
	Credential   Credential   `yaml:"credential" envPrefix:"CREDENTIAL_"`
	Registration Registration `yaml:"registration" envPrefix:"REGISTRATION_"`
	Cache        Cache        `yaml:"cache" envPrefix:"CACHE_"`
	Workers      Workers      `yaml:"workers" envPrefix:"WORKER_"`
	Tracing      Tracing      `yaml:"tracing" envPrefix:"TRACING_"`
	Log          Log          `yaml:"log" envPrefix:"LOG_"`
}

// Defaults returns local-development defaults.
func Defaults() Config {
	return Config{
		ServiceName: "race-registration",
		HTTPPort:    "8080",
		GRPCPort:    "9090",
		Database: Database{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "racereg",
			SSLMode:  "disable",
			MaxConns: 20,
		},
		Kafka: Kafka{
			ConsumerGroup: "race-registration",
			PaymentTopic:  "payment.captured",
		},
		Credential: Credential{
			Issuer:   "race-registration",
			CacheTTL: 30 * 24 * time.Hour,
		},
		Registration: Registration{
			FeeBasisPoints:     500,
			RestockKitOnCancel: true,
		},
		Cache: Cache{EventTTL: 15 * time.Second},
		Workers: Workers{
			OutboxPollInterval:      2 * time.Second,
			OutboxBatchSize:         100,
			CredentialRetryInterval: 30 * time.Second,
			CredentialBatchSize:     50,
			ConsumerPollInterval:    2 * time.Second,
		},
		Tracing: Tracing{SampleRatio: 1},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load applies the YAML file at path (skipped when path is empty or the
// file does not exist) and then environment overrides on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.HTTPPort == "" {
		return errors.New("http port is required")
	}
	if c.Registration.FeeBasisPoints < 0 || c.Registration.FeeBasisPoints > 10000 {
		return fmt.Errorf("fee_basis_points must be within [0, 10000], got %d", c.Registration.FeeBasisPoints)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.ConsumerGroup == "" {
		return errors.New("kafka consumer_group is required when brokers are set")
	}
	return nil
}
