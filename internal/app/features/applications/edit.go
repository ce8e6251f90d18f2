// internal/app/features/applications/edit.go
package applications

import (
	"net/http"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/limits"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/domain/models"
)

type observationsRequest struct {
	Observations string `json:"observations"`
}

type statusRequest struct {
	Status models.Status `json:"status"`
}

// HandleObservations handles PUT /api/applications/{id}/observations.
func (h *Handler) HandleObservations(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "save observations: bad id", err)
		return
	}

	var req observationsRequest
	if err := uierrors.DecodeJSON(w, r, limits.MaxObservationsSize, &req); err != nil {
		h.ErrLog.Write(w, r, "save observations: decode body", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Medium(), "save observations")
	defer cancel()

	v, err := h.Records.SaveObservations(ctx, id, req.Observations)
	if err != nil {
		h.ErrLog.Write(w, r, "save observations failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleStatus handles PUT /api/applications/{id}/status. Only operator
// transitions are accepted; done is reached by saving a decision.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "set status: bad id", err)
		return
	}

	var req statusRequest
	if err := uierrors.DecodeJSON(w, r, limits.MaxStatusSize, &req); err != nil {
		h.ErrLog.Write(w, r, "set status: decode body", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Medium(), "set status")
	defer cancel()

	v, err := h.Records.SetStatus(ctx, id, req.Status)
	if err != nil {
		h.ErrLog.Write(w, r, "set status failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}
