package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/olympic-platform/onboarding/internal/auth"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified principal for downstream handlers.
func RequireAuth(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authz == "" {
			return fiber.NewError(http.StatusUnauthorized, "No token provided")
		}
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "Invalid token")
		}
		raw := strings.TrimSpace(authz[len("bearer "):])
		if raw == "" {
			return fiber.NewError(http.StatusUnauthorized, "No token provided")
		}

		principal, err := tokens.Verify(raw)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return fiber.NewError(http.StatusUnauthorized, "Token expired")
		case err != nil:
			return fiber.NewError(http.StatusUnauthorized, "Invalid token")
		}

		auth.SetPrincipal(c, principal)
		return c.Next()
	}
}

// RequireAdmin allows only the admin principal. Must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "No token provided")
		}
		if !p.IsAdmin() {
			return fiber.NewError(http.StatusForbidden, "Admin access required")
		}
		return c.Next()
	}
}

// RequireApplicant allows only applicant principals. Must run after RequireAuth.
func RequireApplicant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "No token provided")
		}
		if p.Kind != auth.KindApplicant || p.UserID == "" {
			return fiber.NewError(http.StatusForbidden, "Applicant access required")
		}
		return c.Next()
	}
}
