// internal/app/features/institutions/routes.go
package institutions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the institution routes under the base path (typically
// "/api/institutions" from bootstrap). applications serves everything
// below /{id}/applications and may be nil.
func Routes(h *Handler, applications http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)

	// LOOKUP by public code (case-insensitive)
	r.Get("/code/{humanID}", h.ServeByCode)

	r.Route("/{id}", func(ir chi.Router) {
		ir.Get("/", h.ServeGet)
		ir.Put("/", h.HandleUpdate)
		if applications != nil {
			ir.Mount("/applications", applications)
		}
	})

	return r
}
