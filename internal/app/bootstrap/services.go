// internal/app/bootstrap/services.go
package bootstrap

import (
	"fmt"

	"github.com/dalemusser/bourses/internal/app/services/records"
	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/store/audit"
	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"github.com/dalemusser/bourses/internal/app/system/auditlog"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/duplicates"
	"github.com/dalemusser/bourses/internal/app/system/files"
	"github.com/dalemusser/bourses/internal/app/system/fiscal"
	"github.com/dalemusser/bourses/internal/app/system/lifecycle"
	"github.com/dalemusser/bourses/internal/app/system/mailer"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// components are the collaborators BuildHandler mounts.
type components struct {
	records      *records.Service
	institutions *institutionstore.Store
	history      *audit.Store
	audit        *auditlog.Logger
	mail         *mailer.Dispatcher
}

func buildComponents(appCfg AppConfig, deps DBDeps, m *metrics.Metrics, logger *zap.Logger) (*components, error) {
	codec, err := cipher.NewFromSecret(appCfg.PayloadSecret)
	if err != nil {
		return nil, fmt.Errorf("payload codec: %w", err)
	}

	apps := applicationstore.New(deps.MongoDatabase)
	insts := institutionstore.New(deps.MongoDatabase)
	events := audit.New(deps.MongoDatabase)

	auditLog := auditlog.New(events, logger, auditlog.Config{
		Application: appCfg.AuditLog,
		Institution: appCfg.AuditLog,
	})

	var lookup fiscal.Lookup
	if appCfg.FiscalAPIURL != "" {
		lookup = fiscal.NewClient(appCfg.FiscalAPIURL, appCfg.FiscalTimeout, m)
		if deps.Redis != nil {
			lookup = fiscal.NewCachedLookup(lookup, deps.Redis, appCfg.FiscalCacheTTL, m, logger)
		}
	} else {
		logger.Warn("fiscal_api_url not set, fiscal enrichment disabled")
	}

	machine := lifecycle.New(apps, codec, lookup, lifecycle.Options{
		LeaseDuration: appCfg.EnrichmentLease,
		LookupTimeout: appCfg.FiscalTimeout,
	}, m, logger)

	resolver := duplicates.New(apps, codec, appCfg.ResolverWorkers, m, logger)

	letters, err := files.New(appCfg.StorageLocalPath)
	if err != nil {
		return nil, fmt.Errorf("letter storage: %w", err)
	}

	var mail *mailer.Dispatcher
	if appCfg.MailSMTPHost != "" {
		sender := mailer.New(mailer.Config{
			Host:     appCfg.MailSMTPHost,
			Port:     appCfg.MailSMTPPort,
			User:     appCfg.MailSMTPUser,
			Pass:     appCfg.MailSMTPPass,
			From:     appCfg.MailFrom,
			FromName: appCfg.MailFromName,
			TLS:      appCfg.MailTLS,
			Timeout:  timeouts.Long(),
		})
		mail = mailer.NewDispatcher(sender, logger, m, timeouts.Long())
	} else {
		logger.Warn("mail_smtp_host not set, e-mails disabled")
	}

	svc := records.New(records.Deps{
		Applications: apps,
		Institutions: insts,
		Codec:        codec,
		Machine:      machine,
		Resolver:     resolver,
		Files:        letters,
		Mail:         mail,
		Audit:        auditLog,
		Metrics:      m,
		Log:          logger,
		BaseURL:      appCfg.BaseURL,

		CampaignTaxYear: appCfg.CampaignTaxYear,
	})

	return &components{
		records:      svc,
		institutions: insts,
		history:      events,
		audit:        auditLog,
		mail:         mail,
	}, nil
}
