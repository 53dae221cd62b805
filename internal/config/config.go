package config

import (
	"github.com/catalystcommunity/app-utils-go/env"
)

var (
	// DbUri is the database connection string
	DbUri string

	// Port is the HTTP server port
	Port int

	// StoreType selects the account/token store: "postgres" or "memory"
	StoreType = env.GetEnvOrDefault("LACOCTELERA_STORE_TYPE", "postgres")
	// StoreTimeoutSeconds bounds every store operation
	StoreTimeoutSeconds = env.GetEnvAsIntOrDefault("LACOCTELERA_STORE_TIMEOUT_SECONDS", "5")

	// Token settings
	TokenValidityDays  = env.GetEnvAsIntOrDefault("LACOCTELERA_TOKEN_VALIDITY_DAYS", "90")
	TokenLength        = env.GetEnvAsIntOrDefault("LACOCTELERA_TOKEN_LENGTH", "32")
	TokenAlphabet      = env.GetEnvOrDefault("LACOCTELERA_TOKEN_ALPHABET", "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")
	TokenIssueRetries  = env.GetEnvAsIntOrDefault("LACOCTELERA_TOKEN_ISSUE_RETRIES", "3")
	ExpiryWarningDays  = env.GetEnvAsIntOrDefault("LACOCTELERA_EXPIRY_WARNING_DAYS", "7")
	ExpiryCheckHours   = env.GetEnvAsIntOrDefault("LACOCTELERA_EXPIRY_CHECK_INTERVAL_HOURS", "12")
	ExpiryCheckEnabled = env.GetEnvAsBoolOrDefault("LACOCTELERA_EXPIRY_CHECK_ENABLED", "true")

	// BaseURL is the public URL used to build confirmation links
	BaseURL = env.GetEnvOrDefault("LACOCTELERA_BASE_URL", "http://localhost:6080")

	// Confirmation link signing
	ConfirmationSecret        = env.GetEnvOrDefault("LACOCTELERA_CONFIRMATION_SECRET", "")
	ConfirmationValidityHours = env.GetEnvAsIntOrDefault("LACOCTELERA_CONFIRMATION_VALIDITY_HOURS", "24")

	// Notifications
	NotifierType  = env.GetEnvOrDefault("LACOCTELERA_NOTIFIER_TYPE", "log") // log, smtp
	NotifyWorkers = env.GetEnvAsIntOrDefault("LACOCTELERA_NOTIFY_WORKERS", "4")
	AdminEmail    = env.GetEnvOrDefault("LACOCTELERA_ADMIN_EMAIL", "")
	SMTPHost      = env.GetEnvOrDefault("LACOCTELERA_SMTP_HOST", "localhost")
	SMTPPort      = env.GetEnvAsIntOrDefault("LACOCTELERA_SMTP_PORT", "587")
	SMTPUsername  = env.GetEnvOrDefault("LACOCTELERA_SMTP_USERNAME", "")
	SMTPPassword  = env.GetEnvOrDefault("LACOCTELERA_SMTP_PASSWORD", "")
	SMTPFrom      = env.GetEnvOrDefault("LACOCTELERA_SMTP_FROM", "no-reply@lacoctelera.net")

	// Audit archive configuration
	AuditStoreType   = env.GetEnvOrDefault("LACOCTELERA_AUDIT_STORE_TYPE", "none")    // none, memory, filesystem, s3
	AuditBucket      = env.GetEnvOrDefault("LACOCTELERA_AUDIT_BUCKET", "lacoctelera-audit")
	AuditBasePath    = env.GetEnvOrDefault("LACOCTELERA_AUDIT_BASE_PATH", "./audit")   // for filesystem
	AuditPrefix      = env.GetEnvOrDefault("LACOCTELERA_AUDIT_PREFIX", "lacoctelera/") // for s3
	AuditS3Region    = env.GetEnvOrDefault("LACOCTELERA_AUDIT_S3_REGION", "us-east-1")
	AuditS3Endpoint  = env.GetEnvOrDefault("LACOCTELERA_AUDIT_S3_ENDPOINT", "")
	AuditS3AccessKey = env.GetEnvOrDefault("LACOCTELERA_AUDIT_S3_ACCESS_KEY", "")
	AuditS3SecretKey = env.GetEnvOrDefault("LACOCTELERA_AUDIT_S3_SECRET_KEY", "")
	AuditS3PathStyle = env.GetEnvAsBoolOrDefault("LACOCTELERA_AUDIT_S3_PATH_STYLE", "false")
)
