// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework side (ports, TLS, logging, CORS, body limits); everything the
// scholarship service itself needs lives here and is passed to every
// lifecycle hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// PayloadSecret is the input to the key derivation for sealed payloads.
	// Changing it makes every stored payload unreadable; see cmd/bourseskey.
	PayloadSecret string

	// RedisURL enables the fiscal lookup cache when set (redis://host:6379/0).
	RedisURL string

	// Tax-authority lookup
	FiscalAPIURL   string        // blank disables enrichment
	FiscalTimeout  time.Duration // per request
	FiscalCacheTTL time.Duration

	// Lifecycle and background work
	EnrichmentLease     time.Duration // how long a view holds the enrichment claim
	ResolverWorkers     int           // parallel decodes in duplicate matching
	LeaseReaperInterval time.Duration

	// CampaignTaxYear is the tax-notice year expected this campaign
	// ("2017"). Blank means the current calendar year.
	CampaignTaxYear string

	// SubmitRateLimit caps application submissions per client IP per
	// minute. Zero disables the limit.
	SubmitRateLimit int

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (blank disables mail)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string
	MailTLS      string // "mandatory", "opportunistic" or "none"

	// Base URL for dashboard links in staff alerts
	BaseURL string

	// StorageLocalPath is where derived notification letters are written.
	StorageLocalPath string

	// AuditLog controls the audit trail: "all" (db+log), "db", "log", or "off".
	AuditLog string
}
