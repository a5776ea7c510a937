package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olympic-platform/onboarding/internal/auth"
	"github.com/olympic-platform/onboarding/internal/logging"
)

const testPrincipalHeader = "X-Test-Principal"

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

// withTestPrincipal stands in for RequireAuth: "admin" or a user id.
func withTestPrincipal(c *fiber.Ctx) error {
	switch who := c.Get(testPrincipalHeader); who {
	case "":
	case "admin":
		auth.SetPrincipal(c, auth.Principal{Kind: auth.KindAdmin})
	default:
		auth.SetPrincipal(c, auth.Principal{Kind: auth.KindApplicant, UserID: who})
	}
	return c.Next()
}

func setupIdempotentApp(t *testing.T) (*fiber.App, *int64) {
	t.Helper()
	cache, _ := newRedis(t)

	var calls int64
	app := fiber.New()
	app.Use(withTestPrincipal)
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt64(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n, "route": "resource"})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		n := atomic.AddInt64(&calls, 1)
		return c.JSON(fiber.Map{"call": n, "route": "other"})
	})
	return app, &calls
}

type idemRequest struct {
	path      string
	principal string
	key       string
	body      string
}

func send(t *testing.T, app *fiber.App, r idemRequest) (int, string) {
	t.Helper()
	if r.body == "" {
		r.body = "{}"
	}
	req := httptest.NewRequest(fiber.MethodPost, r.path, strings.NewReader(r.body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if r.key != "" {
		req.Header.Set(idempotencyKeyHeader, r.key)
	}
	if r.principal != "" {
		req.Header.Set(testPrincipalHeader, r.principal)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	status, _ := send(t, app, idemRequest{path: "/resource", principal: "u1"})
	assert.Equal(t, fiber.StatusCreated, status)
	send(t, app, idemRequest{path: "/resource", principal: "u1"})
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	status, first := send(t, app, idemRequest{path: "/resource", principal: "u1", key: "abc123"})
	require.Equal(t, fiber.StatusCreated, status)

	status, second := send(t, app, idemRequest{path: "/resource", principal: "u1", key: "abc123"})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.JSONEq(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))

	_, third := send(t, app, idemRequest{path: "/resource", principal: "u1", key: "other"})
	assert.JSONEq(t, `{"call":2,"route":"resource"}`, third)
}

func TestIdempotencyNeverReplaysForAnonymousCallers(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	_, first := send(t, app, idemRequest{path: "/resource", key: "k1", body: `{"email":"a@x.com"}`})
	_, second := send(t, app, idemRequest{path: "/resource", key: "k1", body: `{"email":"a@x.com"}`})

	assert.JSONEq(t, `{"call":1,"route":"resource"}`, first)
	assert.JSONEq(t, `{"call":2,"route":"resource"}`, second)
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestIdempotencyKeysAreScopedPerPrincipal(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	_, alice := send(t, app, idemRequest{path: "/resource", principal: "alice", key: "k1"})
	_, bob := send(t, app, idemRequest{path: "/resource", principal: "bob", key: "k1"})
	_, admin := send(t, app, idemRequest{path: "/resource", principal: "admin", key: "k1"})

	assert.JSONEq(t, `{"call":1,"route":"resource"}`, alice)
	assert.JSONEq(t, `{"call":2,"route":"resource"}`, bob)
	assert.JSONEq(t, `{"call":3,"route":"resource"}`, admin)
	assert.EqualValues(t, 3, atomic.LoadInt64(calls))
}

func TestIdempotencyRejectsKeyReusedOnAnotherRoute(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	status, _ := send(t, app, idemRequest{path: "/resource", principal: "admin", key: "k2"})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = send(t, app, idemRequest{path: "/other", principal: "admin", key: "k2"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestIdempotencyRejectsKeyReusedWithDifferentBody(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	status, _ := send(t, app, idemRequest{path: "/resource", principal: "admin", key: "k3", body: `{"step":"pin"}`})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = send(t, app, idemRequest{path: "/resource", principal: "admin", key: "k3", body: `{"step":"plan"}`})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestIdempotencyNilCacheIsNoop(t *testing.T) {
	app := fiber.New()
	app.Use(withTestPrincipal)
	app.Use(Idempotency(nil, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	status, _ := send(t, app, idemRequest{path: "/resource", principal: "u1", key: "abc"})
	assert.Equal(t, fiber.StatusNoContent, status)
}
