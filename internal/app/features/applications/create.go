// internal/app/features/applications/create.go
package applications

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/limits"
	"github.com/dalemusser/bourses/internal/app/system/ratelimit"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// createResponse acknowledges a submission without echoing the document.
type createResponse struct {
	ID            primitive.ObjectID `json:"id"`
	InstitutionID primitive.ObjectID `json:"institutionId"`
	Status        models.Status      `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// HandleCreate handles POST /api/institutions/{id}/applications. The body
// is the application document as a JSON object.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	instID, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "create application: bad institution id", err)
		return
	}

	if h.Submissions != nil {
		ip := ratelimit.ClientIP(r)
		if !h.Submissions.Allow(ip) {
			wait := h.Submissions.RetryAfter(ip)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.ErrLog.Write(w, r, "create application: rate limited",
				fmt.Errorf("%w: %s", uierrors.ErrRateLimited, ip))
			return
		}
	}

	var doc map[string]any
	if err := uierrors.DecodeJSON(w, r, limits.MaxPayloadSize, &doc); err != nil {
		h.ErrLog.Write(w, r, "create application: decode body", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Medium(), "create application")
	defer cancel()

	rec, err := h.Records.Create(ctx, instID, doc)
	if err != nil {
		h.ErrLog.Write(w, r, "create application failed", err)
		return
	}

	w.Header().Set("Location", "/api/applications/"+rec.ID.Hex())
	uierrors.WriteJSON(w, http.StatusCreated, createResponse{
		ID:            rec.ID,
		InstitutionID: rec.InstitutionID,
		Status:        rec.Status,
		CreatedAt:     rec.CreatedAt,
	})
}
