package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/olympic-platform/onboarding/internal/auth"
	"github.com/olympic-platform/onboarding/internal/onboarding"
)

// RegisterAdminRoutes wires the admin endpoints under /admin.
func RegisterAdminRoutes(r fiber.Router, g gates, authH *auth.Handler, h *onboarding.Handler) {
	admin := r.Group("/admin")
	admin.Post("/login", g.rateLimit, authH.AdminLogin)

	admin.Get("/users", g.requireAuth, g.adminOnly, h.ListUsers)
	admin.Get("/users/:id/history", g.requireAuth, g.adminOnly, h.History)
	admin.Get("/search", g.requireAuth, g.adminOnly, h.SearchUsers)
	admin.Post("/approve", g.requireAuth, g.adminOnly, g.idempotent, h.Approve)
	admin.Post("/set-pin", g.requireAuth, g.adminOnly, g.idempotent, h.SetPin)
}
