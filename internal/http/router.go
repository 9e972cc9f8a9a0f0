package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shieldstore/server/internal/http/handlers"
	"github.com/shieldstore/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured. The edge
// gate runs before every handler; page rendering and the catalog/order routes
// live in external collaborators that mount alongside these.
func NewRouter(authHandler *handlers.AuthHandler, twoFactorHandler *handlers.TwoFactorHandler, gate *middleware.Gate) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(gate.Handler)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/session", authHandler.HandleSession)

		// Shared-password admin login lives under /auth, not /admin: the gate
		// admits only admin-tier tokens past /admin, which a client logging in
		// does not have yet.
		r.Post("/admin/login", authHandler.HandleAdminLogin)
	})

	// Account area: the gate guarantees an authenticated identity here.
	r.Route("/account/2fa", func(r chi.Router) {
		r.Get("/", twoFactorHandler.HandleBegin)
		r.Post("/", twoFactorHandler.HandleConfirm)
		r.Delete("/", twoFactorHandler.HandleDisable)
	})

	return r
}
