package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/campus-event-admission/internal/auth"
)

// Router bundles what NewRouter mounts.
type Router struct {
	Events     *EventHandler
	Profiles   *ProfileHandler
	Access     *AccessHandler
	AuthSecret []byte
	Log        logrus.FieldLogger
}

// NewRouter builds the chi router with the global middleware stack and
// every API route.
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(rt.Log))          // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Get("/events", rt.Events.ListEvents)
	r.Get("/events/{id}", rt.Events.GetEvent)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(rt.AuthSecret))

		participant := r.With(RequireRole(auth.RoleParticipant))
		participant.Post("/profiles", rt.Profiles.Create)
		participant.Get("/profiles/me", rt.Profiles.Me)

		admin := r.With(RequireRole(auth.RoleAdmin))
		admin.Post("/events", rt.Events.CreateEvent)
		admin.Post("/access-requests", rt.Access.Submit)
		admin.Get("/access-requests/mine", rt.Access.Mine)

		r.With(RequireRole(auth.RoleParticipant, auth.RoleGlobalAdmin)).Post("/events/{id}/register", rt.Events.Register)
		r.With(RequireRole(auth.RoleAdmin, auth.RoleGlobalAdmin)).Get("/events/{id}/registrations", rt.Events.ListRegistrations)

		global := r.With(RequireRole(auth.RoleGlobalAdmin))
		global.Get("/access-requests", rt.Access.List)
		global.Post("/access-requests/{id}/review", rt.Access.Review)
		global.Post("/admin/reconcile", rt.Events.Reconcile)
	})

	return r
}
