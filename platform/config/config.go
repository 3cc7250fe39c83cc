// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

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
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// EmailConfig provides settings for transactional email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetEmailTransport() string
	GetResendAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
}

// PaymentsConfig provides settings for the Stripe payment API.
type PaymentsConfig interface {
	GetStripeSecretKey() string
	GetAppBaseURL() string
	IsPaymentsEnabled() bool
}

// MessagingConfig provides settings for the SMS provider chain.
type MessagingConfig interface {
	GetGHLAPIKey() string
	GetGHLLocationID() string
	GetGHLFromNumber() string
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	GetTelnyxAPIKey() string
	GetTelnyxFromNumber() string
}

// AIConfig provides settings for the chat-completion LLM endpoint.
type AIConfig interface {
	GetMoonshotAPIKey() string
	IsAIEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DocumentsConfig provides settings for MinIO document storage.
type DocumentsConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketDocuments() string
	GetW9DocumentKey() string
	IsDocumentsEnabled() bool
}

// NotifierConfig provides the downstream side-effect webhook endpoints.
type NotifierConfig interface {
	GetFollowUpWebhookURL() string
	GetCRMSyncWebhookURL() string
	GetOpsHandoffWebhookURL() string
}

// NotificationConfig provides settings shared by email builders.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	AppBaseURL       string
	EmailEnabled     bool
	EmailTransport   string
	ResendAPIKey     string
	EmailFromName    string
	EmailFromAddress string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	StripeSecretKey  string
	GHLAPIKey        string
	GHLLocationID    string
	GHLFromNumber    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TelnyxAPIKey     string
	TelnyxFromNumber string
	MoonshotAPIKey   string
	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOUseSSL      bool
	BucketDocuments  string
	W9DocumentKey    string
	FollowUpURL      string
	CRMSyncURL       string
	OpsHandoffURL    string
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
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetEmailTransport() string   { return c.EmailTransport }
func (c *Config) GetResendAPIKey() string     { return c.ResendAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }

// PaymentsConfig implementation
func (c *Config) GetStripeSecretKey() string { return c.StripeSecretKey }
func (c *Config) IsPaymentsEnabled() bool    { return c.StripeSecretKey != "" }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// MessagingConfig implementation
func (c *Config) GetGHLAPIKey() string        { return c.GHLAPIKey }
func (c *Config) GetGHLLocationID() string    { return c.GHLLocationID }
func (c *Config) GetGHLFromNumber() string    { return c.GHLFromNumber }
func (c *Config) GetTwilioAccountSID() string { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string  { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string { return c.TwilioFromNumber }
func (c *Config) GetTelnyxAPIKey() string     { return c.TelnyxAPIKey }
func (c *Config) GetTelnyxFromNumber() string { return c.TelnyxFromNumber }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) IsAIEnabled() bool         { return c.MoonshotAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DocumentsConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketDocuments() string { return c.BucketDocuments }
func (c *Config) GetW9DocumentKey() string        { return c.W9DocumentKey }
func (c *Config) IsDocumentsEnabled() bool        { return c.MinIOEndpoint != "" }

// NotifierConfig implementation
func (c *Config) GetFollowUpWebhookURL() string   { return c.FollowUpURL }
func (c *Config) GetCRMSyncWebhookURL() string    { return c.CRMSyncURL }
func (c *Config) GetOpsHandoffWebhookURL() string { return c.OpsHandoffURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	resendAPIKey := getEnv("RESEND_API_KEY", "")
	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	emailTransport := strings.ToLower(getEnv("EMAIL_TRANSPORT", ""))
	if emailTransport == "" {
		if resendAPIKey != "" {
			emailTransport = "resend"
		} else if smtpHost != "" {
			emailTransport = "smtp"
		}
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		AppBaseURL:       getEnv("APP_BASE_URL", "https://app.peachhaus.com"),
		EmailEnabled:     emailEnabled && emailTransport != "",
		EmailTransport:   emailTransport,
		ResendAPIKey:     resendAPIKey,
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "PeachHaus"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", "hello@peachhaus.com"),
		SMTPHost:         smtpHost,
		SMTPPort:         int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		StripeSecretKey:  getEnv("STRIPE_SECRET_KEY", ""),
		GHLAPIKey:        getEnv("GHL_API_KEY", ""),
		GHLLocationID:    getEnv("GHL_LOCATION_ID", ""),
		GHLFromNumber:    getEnv("GHL_FROM_NUMBER", ""),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		TelnyxAPIKey:     getEnv("TELNYX_API_KEY", ""),
		TelnyxFromNumber: getEnv("TELNYX_FROM_NUMBER", ""),
		MoonshotAPIKey:   getEnv("MOONSHOT_API_KEY", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		MinIOEndpoint:    getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:      strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		BucketDocuments:  getEnv("MINIO_BUCKET_DOCUMENTS", "onboarding-documents"),
		W9DocumentKey:    getEnv("W9_DOCUMENT_KEY", "w9/peachhaus-w9.pdf"),
		FollowUpURL:      getEnv("FOLLOWUP_WEBHOOK_URL", ""),
		CRMSyncURL:       getEnv("CRM_SYNC_WEBHOOK_URL", ""),
		OpsHandoffURL:    getEnv("OPS_HANDOFF_WEBHOOK_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if emailEnabled && emailTransport == "resend" && cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY is required when EMAIL_TRANSPORT is resend")
	}
	if emailEnabled && emailTransport == "smtp" && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_TRANSPORT is smtp")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
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
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
