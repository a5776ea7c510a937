package auth

import "github.com/gofiber/fiber/v2"

const principalKey = "auth.principal"

// SetPrincipal attaches a verified principal to the request.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
}

// PrincipalFrom returns the principal attached by the authorization gate.
func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalKey).(Principal)
	return p, ok
}
