// internal/app/features/applications/routes.go
package applications

import "github.com/go-chi/chi/v5"

// Routes mounts the per-application routes under the base path
// (typically "/api/applications" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/{id}", func(ar chi.Router) {
		// VIEW (first view opens the application and enriches it)
		ar.Get("/", h.ServeView)
		ar.Delete("/", h.HandleDelete)

		ar.Put("/observations", h.HandleObservations)
		ar.Put("/status", h.HandleStatus)

		// DECISION
		ar.Put("/notification", h.HandleSaveNotification)
		ar.Delete("/notification", h.HandleDeleteNotification)
		ar.Get("/notification/letter", h.ServeLetter)

		ar.Get("/history", h.ServeHistory)
	})

	return r
}

// InstitutionRoutes mounts the routes that act on the applications of one
// institution. The parent router must bind the institution id to {id}.
func InstitutionRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Get("/counts", h.ServeCounts)
	r.Get("/accounting", h.ServeAccounting)
	r.Get("/wrong-year", h.ServeWrongYear)

	return r
}
