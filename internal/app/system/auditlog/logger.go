// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/bourses/internal/app/store/audit"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Application controls logging for application lifecycle events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Application string
	// Institution controls logging for institution create/update events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Institution string
}

// Recorder persists audit events. *audit.Store satisfies it.
type Recorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via a Recorder) and structured logs (via zap).
type Logger struct {
	store  Recorder
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Recorder, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithRequest stores the caller's address and user agent on ctx so events
// logged further down the call chain can carry them.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: getClientIP(r), userAgent: r.UserAgent()})
}

func clientFrom(ctx context.Context) client {
	c, _ := ctx.Value(clientKey{}).(client)
	return c
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.InstitutionID != nil {
		fields = append(fields, zap.String("institution_id", event.InstitutionID.Hex()))
	}
	if event.ApplicationID != nil {
		fields = append(fields, zap.String("application_id", event.ApplicationID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryApplication:
		setting = l.config.Application
	case audit.CategoryInstitution:
		setting = l.config.Institution
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if event.IP == "" && event.UserAgent == "" {
		c := clientFrom(ctx)
		event.IP = c.ip
		event.UserAgent = c.userAgent
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) application(ctx context.Context, rec models.Application, eventType string, details map[string]string) {
	instID, appID := rec.InstitutionID, rec.ID
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryApplication,
		EventType:     eventType,
		InstitutionID: &instID,
		ApplicationID: &appID,
		Success:       true,
		Details:       details,
	})
}

// --- Application Events ---

// ApplicationCreated logs a newly submitted application.
func (l *Logger) ApplicationCreated(ctx context.Context, rec models.Application) {
	l.application(ctx, rec, audit.EventApplicationCreated, nil)
}

// ApplicationOpened logs the first access of an application by staff.
func (l *Logger) ApplicationOpened(ctx context.Context, rec models.Application) {
	l.application(ctx, rec, audit.EventApplicationOpened, nil)
}

// ApplicationEnriched logs a successful fiscal enrichment.
func (l *Logger) ApplicationEnriched(ctx context.Context, rec models.Application) {
	l.application(ctx, rec, audit.EventApplicationEnriched, nil)
}

// EnrichmentFailed logs a fiscal lookup that could not complete.
func (l *Logger) EnrichmentFailed(ctx context.Context, rec models.Application, reason string) {
	instID, appID := rec.InstitutionID, rec.ID
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryApplication,
		EventType:     audit.EventApplicationEnrichmentFailed,
		InstitutionID: &instID,
		ApplicationID: &appID,
		Success:       false,
		FailureReason: reason,
	})
}

// StatusChanged logs an explicit status transition.
func (l *Logger) StatusChanged(ctx context.Context, rec models.Application, from, to models.Status) {
	l.application(ctx, rec, audit.EventApplicationStatusChanged, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
}

// Notified logs a saved decision. The amount is recorded, never the letter text.
func (l *Logger) Notified(ctx context.Context, rec models.Application, n models.Notification) {
	l.application(ctx, rec, audit.EventApplicationNotified, map[string]string{
		"amount":     strconv.FormatFloat(n.Amount, 'f', 2, 64),
		"email_sent": boolToString(n.Email != ""),
	})
}

// NotificationDeleted logs a decision being withdrawn.
func (l *Logger) NotificationDeleted(ctx context.Context, rec models.Application) {
	l.application(ctx, rec, audit.EventApplicationNotificationDeleted, nil)
}

// ObservationsSaved logs an update of staff observations.
func (l *Logger) ObservationsSaved(ctx context.Context, rec models.Application) {
	l.application(ctx, rec, audit.EventApplicationObservationsSaved, map[string]string{
		"length": strconv.Itoa(len(rec.Observations)),
	})
}

// ApplicationDeleted logs a removed application.
func (l *Logger) ApplicationDeleted(ctx context.Context, instID, appID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryApplication,
		EventType:     audit.EventApplicationDeleted,
		InstitutionID: &instID,
		ApplicationID: &appID,
		Success:       true,
	})
}

// --- Institution Events ---

// InstitutionCreated logs a new institution.
func (l *Logger) InstitutionCreated(ctx context.Context, inst models.Institution) {
	id := inst.ID
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryInstitution,
		EventType:     audit.EventInstitutionCreated,
		InstitutionID: &id,
		Success:       true,
		Details: map[string]string{
			"human_id": inst.HumanID,
		},
	})
}

// InstitutionUpdated logs an institution edit.
func (l *Logger) InstitutionUpdated(ctx context.Context, inst models.Institution) {
	id := inst.ID
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryInstitution,
		EventType:     audit.EventInstitutionUpdated,
		InstitutionID: &id,
		Success:       true,
	})
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
