package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginApp(t *testing.T, limit int) *fiber.App {
	t.Helper()
	cache, _ := newRedis(t)
	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, limit), func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return err
		}
		if req.Password != "right" {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
		}
		return c.SendString(req.Email)
	})
	return app
}

func login(t *testing.T, app *fiber.App, email, password string) int {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestLoginRateLimitCountsFailuresPerEmail(t *testing.T) {
	app := loginApp(t, 2)

	assert.Equal(t, fiber.StatusUnauthorized, login(t, app, "a@x.com", "wrong"))
	assert.Equal(t, fiber.StatusUnauthorized, login(t, app, "A@X.com", "wrong"))
	assert.Equal(t, fiber.StatusTooManyRequests, login(t, app, "a@x.com", "right"))

	assert.Equal(t, fiber.StatusOK, login(t, app, "b@x.com", "right"))
}

func TestLoginRateLimitIgnoresSuccessfulLogins(t *testing.T) {
	app := loginApp(t, 2)

	for i := 0; i < 6; i++ {
		assert.Equal(t, fiber.StatusOK, login(t, app, "a@x.com", "right"))
	}
	assert.Equal(t, fiber.StatusUnauthorized, login(t, app, "a@x.com", "wrong"))
	assert.Equal(t, fiber.StatusOK, login(t, app, "a@x.com", "right"))
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusUnauthorized, login(t, app, "a@x.com", "wrong"))
	}
}
