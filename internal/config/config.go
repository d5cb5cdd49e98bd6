package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileEnv = "CONFIG_FILE"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   LoggerConfig   `yaml:"logger"`
	Security SecurityConfig `yaml:"security"`
	Upload   UploadConfig   `yaml:"upload"`
	Session  SessionConfig  `yaml:"session"`
	Source   SourceConfig   `yaml:"source"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	EnableRateLimit   bool     `yaml:"enable_rate_limit"`
	RateLimitRPS      int      `yaml:"rate_limit_rps"`
	RateLimitBurst    int      `yaml:"rate_limit_burst"`
	EnableCompression bool     `yaml:"enable_compression"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
}

// UploadConfig bounds a single dataset. Everything is held in memory, so
// these limits are the deployment's input size constraint.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	MaxRows  int   `yaml:"max_rows"`
}

type SessionConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

// SourceConfig describes an optional Postgres transaction table.
type SourceConfig struct {
	PostgresDSN    string `yaml:"postgres_dsn"`
	Schema         string `yaml:"schema"`
	Table          string `yaml:"table"`
	CustomerColumn string `yaml:"customer_column"`
	DateColumn     string `yaml:"date_column"`
	SalesColumn    string `yaml:"sales_column"`
}

// KafkaConfig enables result publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit:   true,
			RateLimitRPS:      100,
			RateLimitBurst:    10,
			EnableCompression: true,
			AllowedOrigins:    []string{"http://localhost:8084"},
			TrustedProxies:    []string{"127.0.0.1"},
		},
		Upload: UploadConfig{
			MaxBytes: 32 << 20,
			MaxRows:  1_000_000,
		},
		Session: SessionConfig{
			TTL:         30 * time.Minute,
			MaxSessions: 64,
		},
		Source: SourceConfig{
			Schema:         "public",
			Table:          "transactions",
			CustomerColumn: "Customer_ID",
			DateColumn:     "Order_Date",
			SalesColumn:    "Sales",
		},
		Kafka: KafkaConfig{
			Topic:          "rfm-results",
			PublishTimeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (default config.yaml, optional), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if err := cfg.loadFile(getEnvString(configFileEnv, "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Logger.Level = getEnvString("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnvString("LOG_FORMAT", c.Logger.Format)

	c.Security.EnableRateLimit = getEnvBool("SECURITY_RATE_LIMIT_ENABLED", c.Security.EnableRateLimit)
	c.Security.RateLimitRPS = getEnvInt("SECURITY_RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvInt("SECURITY_RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.EnableCompression = getEnvBool("SECURITY_COMPRESSION_ENABLED", c.Security.EnableCompression)
	c.Security.AllowedOrigins = getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.TrustedProxies = getEnvStringSlice("SECURITY_TRUSTED_PROXIES", c.Security.TrustedProxies)

	c.Upload.MaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)
	c.Upload.MaxRows = getEnvInt("INGEST_MAX_ROWS", c.Upload.MaxRows)

	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Session.MaxSessions = getEnvInt("SESSION_MAX", c.Session.MaxSessions)

	c.Source.PostgresDSN = getEnvString("DATABASE_URL", c.Source.PostgresDSN)
	c.Source.Schema = getEnvString("SOURCE_SCHEMA", c.Source.Schema)
	c.Source.Table = getEnvString("SOURCE_TABLE", c.Source.Table)
	c.Source.CustomerColumn = getEnvString("SOURCE_CUSTOMER_COLUMN", c.Source.CustomerColumn)
	c.Source.DateColumn = getEnvString("SOURCE_DATE_COLUMN", c.Source.DateColumn)
	c.Source.SalesColumn = getEnvString("SOURCE_SALES_COLUMN", c.Source.SalesColumn)

	c.Kafka.Brokers = getEnvStringSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnvString("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.PublishTimeout = getEnvDuration("KAFKA_PUBLISH_TIMEOUT", c.Kafka.PublishTimeout)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	if c.Upload.MaxRows <= 0 {
		return fmt.Errorf("ingest max rows must be positive")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max must be positive")
	}

	if c.Source.Enabled() && c.Source.Table == "" {
		return fmt.Errorf("source table cannot be empty when a database is configured")
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are configured")
	}

	return nil
}

func (s SourceConfig) Enabled() bool {
	return s.PostgresDSN != ""
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
