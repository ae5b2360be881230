package catalog

import (
	"net/http"

	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// CountryRoutes is mounted at /admin/countries. Staff read, superadmins write.
func CountryRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.listCountries)
	r.With(sm.RequireSuperAdmin).Post("/", h.createCountry)
	r.With(sm.RequireSuperAdmin).Patch("/{code}", h.updateCountry)
	return r
}

// AccessRoutes is mounted at /admin/country-access.
func AccessRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireManager)
	r.Get("/", h.getAccess)
	r.Put("/", h.putAccess)
	return r
}

// TypeRoutes is mounted at /admin/service-types.
func TypeRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.listTypes)
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireManager)
		r.Post("/", h.createType)
		r.Patch("/{id}", h.updateType)
		r.Delete("/{id}", h.deleteType)
	})
	return r
}

// LevelRoutes is mounted at /admin/service-levels.
func LevelRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.listLevels)
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireManager)
		r.Post("/", h.createLevel)
		r.Patch("/{id}", h.updateLevel)
		r.Delete("/{id}", h.deleteLevel)
	})
	return r
}

// PairRoutes is mounted at /admin/country-pairs.
func PairRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.listPairs)
	r.Get("/{id}", h.getPair)
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireManager)
		r.Post("/", h.createPair)
		r.Patch("/{id}", h.updatePair)
		r.Put("/{id}/offerings", h.setOfferings)
		r.Delete("/{id}", h.deletePair)
	})
	return r
}

// PublicRoutes is mounted at /common. No session is needed.
func PublicRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/countries", h.publicCountries)
	r.Get("/destinations", h.destinations)
	r.Get("/offerings", h.offerings)
	r.Post("/quote", h.quote)
	return r
}
