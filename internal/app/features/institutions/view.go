// internal/app/features/institutions/view.go
package institutions

import (
	"net/http"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

// ServeList handles GET /api/institutions, ordered by name.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r, timeouts.Medium(), "list institutions")
	defer cancel()

	insts, err := h.Store.List(ctx)
	if err != nil {
		h.ErrLog.Write(w, r, "list institutions failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"institutions": insts})
}

// ServeGet handles GET /api/institutions/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		h.ErrLog.Write(w, r, "get institution: bad id", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Short(), "get institution")
	defer cancel()

	inst, err := h.Store.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.Write(w, r, "get institution failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, inst)
}

// ServeByCode handles GET /api/institutions/code/{humanID}. Families reach
// their school's form through this code.
func (h *Handler) ServeByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "humanID")

	ctx, cancel := h.requestContext(r, timeouts.Short(), "get institution by code")
	defer cancel()

	inst, err := h.Store.GetByHumanID(ctx, code)
	if err != nil {
		h.ErrLog.Write(w, r, "get institution by code failed", err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, inst)
}
