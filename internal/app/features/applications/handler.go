// internal/app/features/applications/handler.go
package applications

import (
	"context"
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/services/records"
	"github.com/dalemusser/bourses/internal/app/store/audit"
	"github.com/dalemusser/bourses/internal/app/system/auditlog"
	"github.com/dalemusser/bourses/internal/app/system/ratelimit"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// History lists the audit events recorded for one application.
type History interface {
	GetByApplication(ctx context.Context, applicationID primitive.ObjectID, limit int64) ([]audit.Event, error)
}

// Handler is the feature-level entry point for Applications.
type Handler struct {
	Records *records.Service
	History History
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger

	// Submissions throttles HandleCreate per client IP. Nil disables it.
	Submissions *ratelimit.Limiter
}

// NewHandler constructs a new Applications handler. history may be nil
// when the audit trail is not stored.
func NewHandler(svc *records.Service, history History, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Records: svc,
		History: history,
		ErrLog:  errLog,
		Log:     logger,
	}
}

// requestContext derives the context of one operation: the caller's
// address for the audit trail and a deadline logged when it is hit.
func (h *Handler) requestContext(r *http.Request, timeout time.Duration, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(auditlog.WithRequest(r.Context(), r), timeout, h.Log, op)
}

// objectID reads the URL parameter key as an ObjectID.
func objectID(r *http.Request, key string) (primitive.ObjectID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, uierrors.BadRequest("invalid %s %q", key, raw)
	}
	return id, nil
}
