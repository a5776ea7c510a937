package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/olympic-platform/onboarding/internal/auth"
	"github.com/olympic-platform/onboarding/internal/onboarding"
)

// RegisterUserRoutes wires the applicant endpoints under /users.
func RegisterUserRoutes(r fiber.Router, g gates, authH *auth.Handler, h *onboarding.Handler) {
	users := r.Group("/users")
	users.Post("/register", h.Register)
	users.Post("/login", g.rateLimit, authH.Login)

	users.Post("/verify-pin", g.requireAuth, g.applicant, g.idempotent, h.VerifyPin)
	users.Post("/select-plan", g.requireAuth, g.applicant, g.idempotent, h.SelectPlan)
	users.Post("/complete-idcard", g.requireAuth, g.applicant, g.idempotent, h.CompleteIDCard)
	users.Get("/profile", g.requireAuth, g.applicant, h.Profile)
}
