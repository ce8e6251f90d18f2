// internal/app/features/institutions/handler.go
package institutions

import (
	"context"
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/auditlog"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the institution persistence the handlers use.
type Store interface {
	Create(ctx context.Context, inst models.Institution) (models.Institution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Institution, error)
	GetByHumanID(ctx context.Context, humanID string) (models.Institution, error)
	List(ctx context.Context) ([]models.Institution, error)
	Update(ctx context.Context, id primitive.ObjectID, inst models.Institution) (models.Institution, error)
}

// Handler is the feature-level entry point for Institutions.
type Handler struct {
	Store  Store
	Audit  *auditlog.Logger
	ErrLog *uierrors.ErrorLogger
	Log    *zap.Logger
}

// NewHandler constructs a new Institutions handler.
func NewHandler(store Store, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Store:  store,
		Audit:  audit,
		ErrLog: errLog,
		Log:    logger,
	}
}

func (h *Handler) requestContext(r *http.Request, timeout time.Duration, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(auditlog.WithRequest(r.Context(), r), timeout, h.Log, op)
}

func objectID(r *http.Request) (primitive.ObjectID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, uierrors.BadRequest("invalid institution id %q", raw)
	}
	return id, nil
}
