// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

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
	GetCORSOrigins() []string
}

// WebhookConfig provides settings for the WhatsApp inbound webhook.
type WebhookConfig interface {
	GetWAWebhookKey() string
}

// WhatsAppConfig provides settings for the outbound WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
}

// RedisConfig provides settings for the realtime pub/sub connection.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq-backed nurturing scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// NurturingConfig provides settings for nurturing plans and gating windows.
type NurturingConfig interface {
	GetNurturingPlansFile() string
	GetOptOutWindow() time.Duration
	GetQuietPeriod() time.Duration
	GetResumeSchedule() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	JWTAccessSecret   string
	CORSOrigins       []string
	WAWebhookKey      string
	WhatsAppURL       string
	WhatsAppKey       string
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	NurturingPlans    string
	OptOutWindow      time.Duration
	QuietPeriod       time.Duration
	ResumeSchedule    string
	SentryDSN         string
	MigrationsEnabled bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// WebhookConfig implementation
func (c *Config) GetWAWebhookKey() string { return c.WAWebhookKey }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string { return c.WhatsAppKey }

// RedisConfig implementation
func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) IsRealtimeEnabled() bool      { return c.RedisURL != "" }
func (c *Config) IsErrorTrackingEnabled() bool { return c.SentryDSN != "" }

// NurturingConfig implementation
func (c *Config) GetNurturingPlansFile() string  { return c.NurturingPlans }
func (c *Config) GetOptOutWindow() time.Duration { return c.OptOutWindow }
func (c *Config) GetQuietPeriod() time.Duration  { return c.QuietPeriod }
func (c *Config) GetResumeSchedule() string      { return c.ResumeSchedule }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		JWTAccessSecret:   getEnv("JWT_ACCESS_SECRET", ""),
		CORSOrigins:       splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		WAWebhookKey:      strings.TrimSpace(getEnv("WA_WEBHOOK_KEY", "")),
		WhatsAppURL:       getEnv("WA_GATEWAY_URL", ""),
		WhatsAppKey:       getEnv("WA_GATEWAY_KEY", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:  mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		NurturingPlans:    getEnv("NURTURING_PLANS_FILE", "config/nurturing_plans.yaml"),
		OptOutWindow:      mustDuration(getEnv("NURTURING_OPTOUT_WINDOW", "24h")),
		QuietPeriod:       mustDuration(getEnv("NURTURING_QUIET_PERIOD", "24h")),
		ResumeSchedule:    getEnv("NURTURING_RESUME_SCHEDULE", "@every 1m"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		MigrationsEnabled: !strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "false"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.OptOutWindow <= 0 {
		return nil, fmt.Errorf("NURTURING_OPTOUT_WINDOW must be a positive duration")
	}
	if cfg.QuietPeriod <= 0 {
		return nil, fmt.Errorf("NURTURING_QUIET_PERIOD must be a positive duration")
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

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
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
