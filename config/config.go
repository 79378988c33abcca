package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory     = "memory"
	StoreRedis      = "redis"
	StoreSQLite     = "sqlite"
	StorePostgres   = "postgres"
	StorePocketBase = "pocketbase"
)

type Config struct {
	// Server configuration
	Port        string `env:"PORT" envDefault:"8090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Store configuration
	StoreDriver string        `env:"STORE_DRIVER" envDefault:"pocketbase"`
	StoreDSN    string        `env:"STORE_DSN"`
	LockTimeout time.Duration `env:"STORE_LOCK_TIMEOUT" envDefault:"2s"`
	MaxRetries  int           `env:"STORE_MAX_RETRIES" envDefault:"5"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Scheduling policy
	CancellationLead    time.Duration `env:"CANCELLATION_LEAD" envDefault:"24h"`
	ClashHorizonDays    int           `env:"CLASH_HORIZON_DAYS" envDefault:"7"`
	MaxAlternativeDates int           `env:"CLASH_MAX_ALTERNATIVE_DATES" envDefault:"5"`
	MaxSuggestedSlots   int           `env:"CLASH_MAX_SUGGESTED_SLOTS" envDefault:"3"`
	CandidateSlots      []string      `env:"CLASH_CANDIDATE_SLOTS" envDefault:"09:00,10:00,11:00,13:00,15:00,16:00,17:00" envSeparator:","`
	Timezone            string        `env:"TIMEZONE" envDefault:"UTC"`
	ReminderLead        time.Duration `env:"REMINDER_LEAD" envDefault:"24h"`

	// PubNub configuration
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string `env:"PUBNUB_SECRET_KEY"`

	// Broker configuration; empty values disable the notifier.
	AMQPURL      string   `env:"AMQP_URL"`
	AMQPExchange string   `env:"AMQP_EXCHANGE" envDefault:"campus.notifications"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"campus-notifications"`

	// Monitoring
	EnableMetrics   bool          `env:"ENABLE_METRICS" envDefault:"true"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"30s"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName     string        `env:"OTEL_SERVICE_NAME" envDefault:"campus-events"`

	// Rate limiting
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreRedis, StorePocketBase:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN is required for the %s store", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimitMax < 1 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit needs a positive max and window")
	}
	return nil
}

// Location resolves Timezone; event dates and times are read in it.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
