// Package config loads settings from the environment (and an optional .env
// file). Consumers depend on the narrow interfaces, never on *Config.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetRateLimitPerSecond() float64
	GetRateLimitBurst() int
	GetMaxUploadMemory() int64
	GetMaxRequestBodySize() int64
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	IsMinIOEnabled() bool
}

// EvidenceConfig provides settings for the evidence gateway.
type EvidenceConfig interface {
	GetEvidenceBucket() string
	GetEvidencePublicBaseURL() string
	GetEvidenceUploadConcurrency() int
	GetEvidenceMaxFileSize() int64
}

// SchedulerConfig provides settings for the asynq notification pipeline.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// IdempotencyConfig provides settings for idempotency-key replay.
type IdempotencyConfig interface {
	GetRedisURL() string
	GetIdempotencyTTL() time.Duration
	IsIdempotencyEnabled() bool
}

// SMTPConfig provides settings for outgoing notification mail.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// OutboxRetentionConfig controls how long finished outbox rows are kept.
type OutboxRetentionConfig interface {
	GetOutboxCleanupInterval() time.Duration
	GetOutboxSucceededRetention() time.Duration
	GetOutboxFailedRetention() time.Duration
}

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	DatabaseURL               string
	MigrationsEnabled         bool
	JWTAccessSecret           string
	CORSAllowAll              bool
	CORSOrigins               []string
	CORSAllowCreds            bool
	RateLimitPerSecond        float64
	RateLimitBurst            int
	MaxUploadMemory           int64
	MaxRequestBodySize        int64
	AppBaseURL                string
	MinIOEndpoint             string
	MinIOAccessKey            string
	MinIOSecretKey            string
	MinIOUseSSL               bool
	MinIOMaxFileSize          int64
	EvidenceBucket            string
	EvidencePublicBaseURL     string
	EvidenceUploadConcurrency int
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	IdempotencyTTL            time.Duration
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
	OutboxCleanupInterval     time.Duration
	OutboxSucceededRetention  time.Duration
	OutboxFailedRetention     time.Duration
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string            { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool          { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string       { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool        { return c.CORSAllowCreds }
func (c *Config) GetRateLimitPerSecond() float64 { return c.RateLimitPerSecond }
func (c *Config) GetRateLimitBurst() int         { return c.RateLimitBurst }
func (c *Config) GetMaxUploadMemory() int64      { return c.MaxUploadMemory }
func (c *Config) GetMaxRequestBodySize() int64   { return c.MaxRequestBodySize }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) IsMinIOEnabled() bool       { return c.MinIOEndpoint != "" }

// EvidenceConfig implementation
func (c *Config) GetEvidenceBucket() string         { return c.EvidenceBucket }
func (c *Config) GetEvidencePublicBaseURL() string  { return c.EvidencePublicBaseURL }
func (c *Config) GetEvidenceUploadConcurrency() int { return c.EvidenceUploadConcurrency }
func (c *Config) GetEvidenceMaxFileSize() int64     { return c.MinIOMaxFileSize }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// IdempotencyConfig implementation
func (c *Config) GetIdempotencyTTL() time.Duration { return c.IdempotencyTTL }
func (c *Config) IsIdempotencyEnabled() bool       { return c.RedisURL != "" && c.IdempotencyTTL > 0 }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" && c.EmailFromAddress != "" }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// OutboxRetentionConfig implementation
func (c *Config) GetOutboxCleanupInterval() time.Duration    { return c.OutboxCleanupInterval }
func (c *Config) GetOutboxSucceededRetention() time.Duration { return c.OutboxSucceededRetention }
func (c *Config) GetOutboxFailedRetention() time.Duration    { return c.OutboxFailedRetention }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	minioEndpoint := getEnv("MINIO_ENDPOINT", "")
	minioUseSSL := strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true")

	cfg := &Config{
		Env:                       getEnv("APP_ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		MigrationsEnabled:         strings.EqualFold(getEnv("DB_MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:           getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:              corsAllowAll,
		CORSOrigins:               corsOrigins,
		CORSAllowCreds:            strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RateLimitPerSecond:        mustFloat64(getEnv("RATE_LIMIT_PER_SECOND", "10")),
		RateLimitBurst:            mustInt(getEnv("RATE_LIMIT_BURST", "30")),
		MaxUploadMemory:           mustInt64(getEnv("MAX_UPLOAD_MEMORY", "33554432")),
		MaxRequestBodySize:        mustInt64(getEnv("MAX_REQUEST_BODY_SIZE", "104857600")),
		AppBaseURL:                getEnv("APP_BASE_URL", "http://localhost:4200"),
		MinIOEndpoint:             minioEndpoint,
		MinIOAccessKey:            getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:            getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:               minioUseSSL,
		MinIOMaxFileSize:          mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "20971520")),
		EvidenceBucket:            getEnv("MINIO_BUCKET_INSPECTION_EVIDENCE", "inspection-evidence"),
		EvidencePublicBaseURL:     getEnv("EVIDENCE_PUBLIC_BASE_URL", defaultPublicBaseURL(minioEndpoint, minioUseSSL)),
		EvidenceUploadConcurrency: mustInt(getEnv("EVIDENCE_UPLOAD_CONCURRENCY", "4")),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "inspections"),
		AsynqConcurrency:          mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		IdempotencyTTL:            mustDuration(getEnv("IDEMPOTENCY_TTL", "24h")),
		SMTPHost:                  getEnv("SMTP_HOST", ""),
		SMTPPort:                  mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:              getEnv("SMTP_USERNAME", ""),
		SMTPPassword:              getEnv("SMTP_PASSWORD", ""),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Rental Inspections"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
		OutboxCleanupInterval:     mustDuration(getEnv("OUTBOX_CLEANUP_INTERVAL", "1h")),
		OutboxSucceededRetention:  days(mustInt(getEnv("OUTBOX_SUCCEEDED_RETENTION_DAYS", "14"))),
		OutboxFailedRetention:     days(mustInt(getEnv("OUTBOX_FAILED_RETENTION_DAYS", "30"))),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.EvidenceUploadConcurrency < 1 {
		cfg.EvidenceUploadConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat64(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	return slices.Contains(values, "*")
}

// days converts a day count; non-positive counts become 0 so callers fall
// back to their own defaults.
func days(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 24 * time.Hour
}

func defaultPublicBaseURL(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return ""
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
