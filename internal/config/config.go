package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server      ServerConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	MusicBrainz MusicBrainzConfig
	Orders      OrdersConfig
	Kafka       KafkaConfig
	Sheets      SheetsConfig
	Reporting   ReportingConfig
	Telemetry   TelemetryConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB. Transactions need a replica set.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig holds the cache connection and record search TTL.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	RecordsCacheTTL time.Duration
}

// MusicBrainzConfig configures the release lookup client.
type MusicBrainzConfig struct {
	BaseURL   string
	UserAgent string
	CacheTTL  time.Duration
}

// OrdersConfig bounds order placement.
type OrdersConfig struct {
	TxTimeout time.Duration
}

// KafkaConfig enables order event publishing when Brokers is not empty.
type KafkaConfig struct {
	Brokers        []string
	OrdersTopic    string
	OutboxSchedule string
}

// SheetsConfig contains configuration required to export the sales ledger to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sales export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// TelemetryConfig holds tracing export settings.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	recordsTTL, err := getenvDuration("RECORDS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	mbTTL, err := getenvDuration("MUSICBRAINZ_CACHE_TTL", 5*24*time.Hour)
	if err != nil {
		return nil, err
	}
	txTimeout, err := getenvDuration("ORDER_TX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGO_URL"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "recordshop"),
		},
		Redis: RedisConfig{
			Addr:            getenvWithDefault("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			RecordsCacheTTL: recordsTTL,
		},
		MusicBrainz: MusicBrainzConfig{
			BaseURL:   getenvWithDefault("MUSICBRAINZ_BASE_URL", "https://musicbrainz.org/ws/2"),
			UserAgent: getenvWithDefault("MUSICBRAINZ_USER_AGENT", "recordshop/1.0 ( ops@recordshop.local )"),
			CacheTTL:  mbTTL,
		},
		Orders: OrdersConfig{
			TxTimeout: txTimeout,
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
			OrdersTopic:    getenvWithDefault("KAFKA_ORDERS_TOPIC", "orders.events"),
			OutboxSchedule: getenvWithDefault("OUTBOX_SCHEDULE", "@every 5s"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("SALES_REPORT_SCHEDULE", "0 23 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getenvWithDefault("SERVICE_NAME", "recordshop"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGO_URL must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR must not be empty")
	}

	if c.MusicBrainz.BaseURL == "" {
		return errors.New("MUSICBRAINZ_BASE_URL must not be empty")
	}

	if c.Orders.TxTimeout <= 0 {
		return errors.New("ORDER_TX_TIMEOUT must be positive")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.OrdersTopic == "" {
		return errors.New("KAFKA_ORDERS_TOPIC must be provided when KAFKA_BROKERS is set")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Sheets.Enabled() && c.Reporting.CronSchedule == "" {
		return errors.New("SALES_REPORT_SCHEDULE must be provided")
	}

	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
