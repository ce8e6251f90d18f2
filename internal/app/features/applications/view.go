// internal/app/features/applications/view.go
package applications

import (
	"net/http"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// ServeView handles GET /api/applications/{id}.
//
// The first view of a new application moves it to pending and, when the
// guardian gave fiscal credentials, fills in the tax years. The call then
// waits on the fiscal service and fails with 502 if it cannot answer.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "view application: bad id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Long(), "view application")
	defer cancel()

	v, err := h.Records.View(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "view application failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleDelete handles DELETE /api/applications/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		h.ErrLog.Write(w, r, "delete application: bad id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Long(), "delete application")
	defer cancel()

	if err := h.Records.Delete(ctx, id); err != nil {
		h.ErrLog.Write(w, r, "delete application failed", err)
		return
	}
	h.Log.Debug("application deleted over http", zap.String("application_id", id.Hex()))
	w.WriteHeader(http.StatusNoContent)
}
