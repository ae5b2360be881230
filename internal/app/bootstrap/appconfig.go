// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// ports, TLS, logging, CORS and body limits; everything specific to the
// visa desk lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: visadesk-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Maximum session cookie lifetime (default: 24h)

	// Rate limiting configuration
	RateLimitEnabled       bool          // Enable rate limiting for login attempts (default: true)
	RateLimitLoginAttempts int           // Max failed login attempts before lockout (default: 5)
	RateLimitLoginWindow   time.Duration // Time window for counting failed attempts (default: 15m)
	RateLimitLoginLockout  time.Duration // Lockout duration after exceeding limit (default: 15m)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// File storage configuration
	StorageType      string // Storage backend: "local" or "s3"
	StorageLocalPath string // Local storage path (e.g., "./uploads")
	StorageLocalURL  string // URL prefix for serving local files (e.g., "/files")

	// S3/CloudFront configuration (only used if StorageType is "s3")
	StorageS3Region    string // AWS region
	StorageS3Bucket    string // S3 bucket name
	StorageS3Prefix    string // Key prefix (e.g., "uploads/")
	StorageCFURL       string // CloudFront distribution URL
	StorageCFKeyPairID string // CloudFront key pair ID
	StorageCFKeyPath   string // Path to CloudFront private key file

	UploadMaxBytes int64         // Largest accepted upload (documents, LOAs, CMS images)
	DownloadURLTTL time.Duration // Lifetime of signed download URLs

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (e.g., localhost for Mailpit)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string // SMTP username
	MailSMTPPass string // SMTP password
	MailFrom     string // From email address (e.g., noreply@example.com)
	MailFromName string // From display name

	// Base URL for links in notification emails
	BaseURL string

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth  string // Authentication events
	AuditLogAdmin string // Admin and case events

	// Tenancy
	PrimaryDomain    string // brands resolve from <slug>.<primary_domain>
	MultiBrand       bool   // resolve brands from subdomains instead of serving the default brand
	DefaultBrandSlug string // brand served on localhost and single-brand installs

	// SSO backends; a backend is enabled when its credentials are set
	SSOJWTSecret       string
	SSOJWTIssuer       string
	GoogleClientID     string
	GoogleClientSecret string
	SSOTimeout         time.Duration // per-login budget shared by all backends

	// Case event stream (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsStream  string

	// Prometheus
	MetricsEnabled bool
	MetricsToken   string // bearer token for /metrics; empty leaves it open

	// Superadmin seeding
	SeedSuperAdminEmail    string
	SeedSuperAdminPassword string

	// Background cleanup
	DraftRetention        time.Duration // drafts untouched this long are soft-deleted
	NotificationRetention time.Duration // read notifications older than this are removed
}
