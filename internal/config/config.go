package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
)

// Config represents application configuration
type Config struct {
	Server    ServerConfig             `json:"server"`
	Database  DatabaseConfig           `json:"database"`
	Redis     RedisConfig              `json:"redis"`
	Events    EventsConfig             `json:"events"`
	RateLimit RateLimitConfig          `json:"rate_limit"`
	Security  SecurityConfig           `json:"security"`
	Logging   LoggingConfig            `json:"logging"`
	Audit     AuditConfig              `json:"audit"`
	Workflow  WorkflowSource           `json:"workflow"`
	Quality   domain.QualityThresholds `json:"quality"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

// DatabaseConfig represents database configuration. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL            string        `json:"url"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	MigrationsPath string        `json:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	URL string `json:"url"`
}

// EventsConfig controls domain event publishing
type EventsConfig struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel"`
}

// RateLimitConfig controls request throttling on write-heavy endpoints
type RateLimitConfig struct {
	Enabled       bool          `json:"enabled"`
	Requests      int           `json:"requests"`
	Window        time.Duration `json:"window"`
	BlockDuration time.Duration `json:"block_duration"`
}

// SecurityConfig represents identity and CORS configuration
type SecurityConfig struct {
	JWTSecret            string        `json:"-"`
	TokenTTL             time.Duration `json:"token_ttl"`
	CORSEnabled          bool          `json:"cors_enabled"`
	CORSAllowedOrigins   []string      `json:"cors_allowed_origins"`
	CORSAllowCredentials bool          `json:"cors_allow_credentials"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// AuditConfig controls the audit trail
type AuditConfig struct {
	DigestAlgorithm  string                 `json:"digest_algorithm"`
	VerifyInterval   time.Duration          `json:"verify_interval"`
	ReadOnly         bool                   `json:"read_only"`
	Retention        domain.RetentionPolicy `json:"retention"`
	ArchiveAfterDays int                    `json:"archive_after_days"`
	ClockSkew        time.Duration          `json:"clock_skew"`
	MinEntryInterval time.Duration          `json:"min_entry_interval"`
}

// WorkflowSource points at an optional YAML file overriding the workflow tables
type WorkflowSource struct {
	ConfigFile string `json:"config_file"`
}

var (
	ErrInvalidPort            = errors.New("SERVER_PORT must be a number")
	ErrInvalidDigestAlgorithm = errors.New("AUDIT_DIGEST_ALGORITHM must be sha256, blake3 or legacy")
	ErrInvalidRetention       = errors.New("audit retention days must be positive")
	ErrInvalidRateLimit       = errors.New("RATE_LIMIT_REQUESTS must be positive when rate limiting is enabled")
)

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvOrDefaultDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvOrDefaultDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvOrDefaultDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvOrDefaultDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			Environment:     getEnvOrDefault("ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConnections: getEnvOrDefaultInt("DB_MAX_CONNECTIONS", 20),
			MaxIdleTime:    getEnvOrDefaultDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			ConnectTimeout: getEnvOrDefaultDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
			MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "./migrations"),
		},
		Redis: RedisConfig{
			URL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		},
		Events: EventsConfig{
			Enabled: getEnvOrDefaultBool("EVENTS_ENABLED", false),
			Channel: getEnvOrDefault("EVENTS_CHANNEL", "pim.events"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvOrDefaultBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvOrDefaultInt("RATE_LIMIT_REQUESTS", 60),
			Window:        getEnvOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute),
			BlockDuration: getEnvOrDefaultDuration("RATE_LIMIT_BLOCK_DURATION", 5*time.Minute),
		},
		Security: SecurityConfig{
			JWTSecret:            os.Getenv("JWT_SECRET"),
			TokenTTL:             getEnvOrDefaultDuration("JWT_TOKEN_TTL", time.Hour),
			CORSEnabled:          getEnvOrDefaultBool("CORS_ENABLED", true),
			CORSAllowedOrigins:   parseList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),
			CORSAllowCredentials: getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		},
		Logging: LoggingConfig{
			Level:       getEnvOrDefault("LOG_LEVEL", "info"),
			Format:      getEnvOrDefault("LOG_FORMAT", "json"),
			ServiceName: getEnvOrDefault("LOG_SERVICE_NAME", "pim"),
		},
		Audit: AuditConfig{
			DigestAlgorithm: getEnvOrDefault("AUDIT_DIGEST_ALGORITHM", integrity.AlgorithmSHA256),
			VerifyInterval:  getEnvOrDefaultDuration("AUDIT_VERIFY_INTERVAL", time.Hour),
			ReadOnly:        getEnvOrDefaultBool("AUDIT_READ_ONLY", false),
			Retention: domain.RetentionPolicy{
				CriticalDays: getEnvOrDefaultInt("AUDIT_RETENTION_CRITICAL_DAYS", 2555),
				HighDays:     getEnvOrDefaultInt("AUDIT_RETENTION_HIGH_DAYS", 1095),
				MediumDays:   getEnvOrDefaultInt("AUDIT_RETENTION_MEDIUM_DAYS", 365),
			},
			ArchiveAfterDays: getEnvOrDefaultInt("AUDIT_ARCHIVE_AFTER_DAYS", 90),
			ClockSkew:        getEnvOrDefaultDuration("AUDIT_CLOCK_SKEW", 5*time.Minute),
			MinEntryInterval: getEnvOrDefaultDuration("AUDIT_MIN_ENTRY_INTERVAL", 0),
		},
		Workflow: WorkflowSource{
			ConfigFile: os.Getenv("WORKFLOW_CONFIG_FILE"),
		},
		Quality: loadQuality(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return ErrInvalidPort
	}
	if _, err := integrity.New(c.Audit.DigestAlgorithm); err != nil {
		return ErrInvalidDigestAlgorithm
	}
	r := c.Audit.Retention
	if r.CriticalDays <= 0 || r.HighDays <= 0 || r.MediumDays <= 0 {
		return ErrInvalidRetention
	}
	if c.RateLimit.Enabled && c.RateLimit.Requests <= 0 {
		return ErrInvalidRateLimit
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("invalid QUALITY_* configuration: %w", err)
	}
	return nil
}

// Address returns host:port for the HTTP listener
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// UsesDatabase reports whether a PostgreSQL URL is configured
func (c *Config) UsesDatabase() bool {
	return c.Database.URL != ""
}

func loadQuality() domain.QualityThresholds {
	d := domain.DefaultQualityThresholds()
	return domain.QualityThresholds{
		MinImageCount:        getEnvOrDefaultInt("QUALITY_MIN_IMAGE_COUNT", d.MinImageCount),
		MaxImageCount:        getEnvOrDefaultInt("QUALITY_MAX_IMAGE_COUNT", d.MaxImageCount),
		MinDescriptionLength: getEnvOrDefaultInt("QUALITY_MIN_DESCRIPTION_LENGTH", d.MinDescriptionLength),
		MaxDescriptionLength: getEnvOrDefaultInt("QUALITY_MAX_DESCRIPTION_LENGTH", d.MaxDescriptionLength),
		RequiredCategories:   getEnvOrDefaultInt("QUALITY_REQUIRED_CATEGORIES", d.RequiredCategories),
		MaxCategories:        getEnvOrDefaultInt("QUALITY_MAX_CATEGORIES", d.MaxCategories),
		MinKeywords:          getEnvOrDefaultInt("QUALITY_MIN_KEYWORDS", d.MinKeywords),
		MaxKeywords:          getEnvOrDefaultInt("QUALITY_MAX_KEYWORDS", d.MaxKeywords),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvOrDefaultDuration interprets bare numbers as seconds, anything else as a Go duration
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
