// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "VISADESK"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: VISADESK_MONGO_URI, VISADESK_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "visadesk", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "visadesk-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie max age (e.g., 24h, 720h, 30m)"},

	// Rate limiting configuration
	{Name: "rate_limit_enabled", Default: true, Desc: "Enable rate limiting for login attempts"},
	{Name: "rate_limit_login_attempts", Default: 5, Desc: "Max failed login attempts before lockout"},
	{Name: "rate_limit_login_window", Default: "15m", Desc: "Time window for counting failed attempts"},
	{Name: "rate_limit_login_lockout", Default: "15m", Desc: "Lockout duration after exceeding limit"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// File storage configuration
	{Name: "storage_type", Default: "local", Desc: "Storage backend: 'local' or 's3'"},
	{Name: "storage_local_path", Default: "./uploads", Desc: "Local storage path for uploaded files"},
	{Name: "storage_local_url", Default: "/files", Desc: "URL prefix for serving local files"},
	{Name: "upload_max_bytes", Default: 10 << 20, Desc: "Largest accepted upload in bytes"},
	{Name: "download_url_ttl", Default: "15m", Desc: "Lifetime of signed download URLs"},

	// S3/CloudFront configuration
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "uploads/", Desc: "S3 key prefix"},
	{Name: "storage_cf_url", Default: "", Desc: "CloudFront distribution URL"},
	{Name: "storage_cf_keypair_id", Default: "", Desc: "CloudFront key pair ID"},
	{Name: "storage_cf_key_path", Default: "", Desc: "Path to CloudFront private key file"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@example.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "VisaDesk", Desc: "From display name"},
	{Name: "base_url", Default: "http://localhost:8080", Desc: "Base URL for email links"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin and case event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Tenancy
	{Name: "primary_domain", Default: "", Desc: "Domain brands are served under as subdomains"},
	{Name: "multi_brand", Default: false, Desc: "Resolve the brand from the request subdomain"},
	{Name: "default_brand_slug", Default: "default", Desc: "Brand served on localhost and single-brand installs"},

	// SSO
	{Name: "sso_jwt_secret", Default: "", Desc: "HMAC secret for partner-portal SSO tokens (empty disables)"},
	{Name: "sso_jwt_issuer", Default: "", Desc: "Required issuer of partner-portal SSO tokens"},
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "sso_timeout", Default: "10s", Desc: "Time budget for verifying an SSO token"},

	// Events
	{Name: "redis_addr", Default: "", Desc: "Redis address for the case event stream (empty disables)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "events_stream", Default: "visadesk:events", Desc: "Redis stream case events are appended to"},

	// Metrics
	{Name: "metrics_enabled", Default: true, Desc: "Serve Prometheus metrics at /metrics"},
	{Name: "metrics_token", Default: "", Desc: "Bearer token required for /metrics (empty leaves it open)"},

	// Seeding
	{Name: "seed_superadmin_email", Default: "", Desc: "Email of the superadmin created on startup (if set)"},
	{Name: "seed_superadmin_password", Default: "", Desc: "Password for the seeded superadmin"},

	// Retention
	{Name: "draft_retention", Default: "720h", Desc: "Drafts untouched this long are soft-deleted"},
	{Name: "notification_retention", Default: "2160h", Desc: "Read notifications older than this are deleted"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, VISADESK_* for app) and
// command-line flags, merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		// Rate limiting
		RateLimitEnabled:       appValues.Bool("rate_limit_enabled"),
		RateLimitLoginAttempts: appValues.Int("rate_limit_login_attempts"),
		RateLimitLoginWindow:   appValues.Duration("rate_limit_login_window", 15*time.Minute),
		RateLimitLoginLockout:  appValues.Duration("rate_limit_login_lockout", 15*time.Minute),

		CSRFKey: appValues.String("csrf_key"),

		// File storage
		StorageType:      appValues.String("storage_type"),
		StorageLocalPath: appValues.String("storage_local_path"),
		StorageLocalURL:  appValues.String("storage_local_url"),
		UploadMaxBytes:   int64(appValues.Int("upload_max_bytes")),
		DownloadURLTTL:   appValues.Duration("download_url_ttl", 15*time.Minute),

		// S3/CloudFront
		StorageS3Region:    appValues.String("storage_s3_region"),
		StorageS3Bucket:    appValues.String("storage_s3_bucket"),
		StorageS3Prefix:    appValues.String("storage_s3_prefix"),
		StorageCFURL:       appValues.String("storage_cf_url"),
		StorageCFKeyPairID: appValues.String("storage_cf_keypair_id"),
		StorageCFKeyPath:   appValues.String("storage_cf_key_path"),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		BaseURL:      appValues.String("base_url"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		// Tenancy
		PrimaryDomain:    appValues.String("primary_domain"),
		MultiBrand:       appValues.Bool("multi_brand"),
		DefaultBrandSlug: appValues.String("default_brand_slug"),

		// SSO
		SSOJWTSecret:       appValues.String("sso_jwt_secret"),
		SSOJWTIssuer:       appValues.String("sso_jwt_issuer"),
		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
		SSOTimeout:         appValues.Duration("sso_timeout", 10*time.Second),

		// Events
		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),
		EventsStream:  appValues.String("events_stream"),

		// Metrics
		MetricsEnabled: appValues.Bool("metrics_enabled"),
		MetricsToken:   appValues.String("metrics_token"),

		// Seeding
		SeedSuperAdminEmail:    appValues.String("seed_superadmin_email"),
		SeedSuperAdminPassword: appValues.String("seed_superadmin_password"),

		// Retention
		DraftRetention:        appValues.Duration("draft_retention", 30*24*time.Hour),
		NotificationRetention: appValues.Duration("notification_retention", 90*24*time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.StorageType {
	case "local", "":
	case "s3":
		if appCfg.StorageS3Bucket == "" || appCfg.StorageS3Region == "" {
			return fmt.Errorf("storage_type s3 requires storage_s3_bucket and storage_s3_region")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", appCfg.StorageType)
	}

	if appCfg.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload_max_bytes must be positive, got %d", appCfg.UploadMaxBytes)
	}
	if appCfg.MultiBrand && appCfg.PrimaryDomain == "" {
		return fmt.Errorf("multi_brand requires primary_domain")
	}
	// Zero would make the cleanup jobs purge everything.
	if appCfg.DraftRetention <= 0 || appCfg.NotificationRetention <= 0 {
		return fmt.Errorf("draft_retention and notification_retention must be positive")
	}
	if !auditlog.IsValidMode(appCfg.AuditLogAuth) || !auditlog.IsValidMode(appCfg.AuditLogAdmin) {
		return fmt.Errorf("audit_log_auth and audit_log_admin must be one of all, db, log, off")
	}
	if appCfg.SSOJWTSecret != "" && appCfg.SSOJWTIssuer == "" {
		logger.Warn("sso_jwt_issuer is empty; partner SSO tokens are accepted from any issuer")
	}

	return nil
}
