// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/inputval"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// devPayloadSecret is used in dev when payload_secret is blank. Records
// sealed with it are not portable to any other environment.
const devPayloadSecret = "bourses-dev-only-payload-secret"

// appConfigKeys defines the configuration keys for the scholarship service.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, payload_secret, etc.
//   - Environment variables: BOURSES_MONGO_URI, BOURSES_PAYLOAD_SECRET, etc.
//   - Command-line flags: --mongo_uri, --payload_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "bourses", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "payload_secret", Default: "", Desc: "Secret the payload encryption key is derived from (required outside dev)"},

	// Fiscal lookup
	{Name: "redis_url", Default: "", Desc: "Redis URL for the fiscal lookup cache (blank disables the cache)"},
	{Name: "fiscal_api_url", Default: "", Desc: "Tax-authority API base URL (blank disables enrichment)"},
	{Name: "fiscal_timeout", Default: "8s", Desc: "Timeout of a single fiscal lookup"},
	{Name: "fiscal_cache_ttl", Default: "24h", Desc: "How long fiscal lookup results stay cached"},

	// Lifecycle
	{Name: "enrichment_lease", Default: "2m", Desc: "How long a view holds the enrichment claim"},
	{Name: "resolver_workers", Default: 4, Desc: "Parallel payload decodes during duplicate matching"},
	{Name: "lease_reaper_interval", Default: "1m", Desc: "How often expired enrichment leases are released"},
	{Name: "submit_rate_limit", Default: 30, Desc: "Application submissions allowed per client IP per minute (0 disables)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank disables mail)"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@bourses.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "Bourses", Desc: "From display name"},
	{Name: "mail_tls", Default: "mandatory", Desc: "SMTP TLS policy: 'mandatory', 'opportunistic' or 'none'"},

	{Name: "campaign_tax_year", Default: "", Desc: "Expected tax-notice year (blank = current year)"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "Base URL for dashboard links in e-mails"},
	{Name: "storage_local_path", Default: "./data/letters", Desc: "Directory for generated notification letters"},

	{Name: "audit_log", Default: "all", Desc: "Audit logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, BOURSES_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "BOURSES", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		PayloadSecret: appValues.String("payload_secret"),

		RedisURL:       appValues.String("redis_url"),
		FiscalAPIURL:   appValues.String("fiscal_api_url"),
		FiscalTimeout:  appValues.Duration("fiscal_timeout", 8*time.Second),
		FiscalCacheTTL: appValues.Duration("fiscal_cache_ttl", 24*time.Hour),

		EnrichmentLease:     appValues.Duration("enrichment_lease", 2*time.Minute),
		ResolverWorkers:     appValues.Int("resolver_workers"),
		LeaseReaperInterval: appValues.Duration("lease_reaper_interval", time.Minute),
		SubmitRateLimit:     appValues.Int("submit_rate_limit"),
		CampaignTaxYear:     strings.TrimSpace(appValues.String("campaign_tax_year")),

		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		MailTLS:      appValues.String("mail_tls"),

		BaseURL:          appValues.String("base_url"),
		StorageLocalPath: appValues.String("storage_local_path"),
		AuditLog:         appValues.String("audit_log"),
	}

	if appCfg.PayloadSecret == "" && coreCfg.Env == "dev" {
		appCfg.PayloadSecret = devPayloadSecret
		logger.Warn("payload_secret not set, using the dev-only secret")
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Problems are caught here, before any connection is attempted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.MongoDatabase) == "" {
		return errors.New("mongo_database must be set")
	}

	if appCfg.PayloadSecret == "" {
		return errors.New("payload_secret must be set")
	}
	if appCfg.PayloadSecret == devPayloadSecret && coreCfg.Env != "dev" {
		return errors.New("payload_secret: the dev-only secret cannot be used outside dev")
	}

	if !inputval.IsValidHTTPURL(appCfg.BaseURL) {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", appCfg.BaseURL)
	}
	if appCfg.FiscalAPIURL != "" && !inputval.IsValidHTTPURL(appCfg.FiscalAPIURL) {
		return fmt.Errorf("fiscal_api_url must be an absolute http(s) URL, got %q", appCfg.FiscalAPIURL)
	}
	if appCfg.MailSMTPHost != "" && !inputval.IsValidEmail(appCfg.MailFrom) {
		return fmt.Errorf("mail_from must be an e-mail address, got %q", appCfg.MailFrom)
	}

	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}

	durations := map[string]time.Duration{
		"fiscal_timeout":        appCfg.FiscalTimeout,
		"fiscal_cache_ttl":      appCfg.FiscalCacheTTL,
		"enrichment_lease":      appCfg.EnrichmentLease,
		"lease_reaper_interval": appCfg.LeaseReaperInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if appCfg.ResolverWorkers <= 0 {
		return fmt.Errorf("resolver_workers must be positive, got %d", appCfg.ResolverWorkers)
	}

	if y := appCfg.CampaignTaxYear; y != "" {
		if n, err := strconv.Atoi(y); err != nil || len(y) != 4 || n < 1900 {
			return fmt.Errorf("campaign_tax_year must be a four-digit year, got %q", y)
		}
	}

	if appCfg.SubmitRateLimit < 0 {
		return fmt.Errorf("submit_rate_limit must not be negative, got %d", appCfg.SubmitRateLimit)
	}

	switch appCfg.AuditLog {
	case "all", "db", "log", "off":
	default:
		return fmt.Errorf("audit_log must be one of all, db, log, off; got %q", appCfg.AuditLog)
	}

	switch strings.ToLower(appCfg.MailTLS) {
	case "", "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("mail_tls must be one of mandatory, opportunistic, none; got %q", appCfg.MailTLS)
	}

	return nil
}
