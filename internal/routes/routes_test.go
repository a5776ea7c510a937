package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/olympic-platform/onboarding/internal/config"
	"github.com/olympic-platform/onboarding/internal/httpx"
	"github.com/olympic-platform/onboarding/internal/logging"
	"github.com/olympic-platform/onboarding/internal/notification"
)

const (
	adminEmail = "admin@example.com"
	adminPass  = "admin-pass"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

func newTestApp(t *testing.T) (*fiber.App, *recordingNotifier) {
	t.Helper()
	return newTestAppWithCache(t, nil)
}

func newTestAppWithCache(t *testing.T, cache *redis.Client) (*fiber.App, *recordingNotifier) {
	t.Helper()
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger)})
	notifier := &recordingNotifier{}
	err := Setup(app, Deps{
		Cfg: config.Config{
			AdminUser:      adminEmail,
			AdminPass:      adminPass,
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			BcryptCost:     bcrypt.MinCost,
			StorageDriver:  config.DriverMemory,
			LoginRateLimit: 5,
			IdempotencyTTL: time.Minute,
		},
		Cache:    cache,
		Notifier: notifier,
		Logger:   logger,
	})
	require.NoError(t, err)
	return app, notifier
}

func do(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()
	return doWithKey(t, app, method, path, token, "", body)
}

func doWithKey(t *testing.T, app *fiber.App, method, path, token, idemKey string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func object(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func list(t *testing.T, raw []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

var ada = fiber.Map{
	"name":     "Ada",
	"email":    "Ada@Example.com",
	"phone":    "+237650000000",
	"country":  "CM",
	"password": "password1",
}

func TestOnboardingEndToEnd(t *testing.T) {
	app, notifier := newTestApp(t)

	status, raw := do(t, app, http.MethodPost, "/api/users/register", "", ada)
	require.Equal(t, http.StatusCreated, status, string(raw))
	reg := object(t, raw)
	assert.Equal(t, "step1", reg["status"])
	applicantToken, _ := reg["token"].(string)
	require.NotEmpty(t, applicantToken)

	status, _ = do(t, app, http.MethodPost, "/api/users/register", "", ada)
	assert.Equal(t, http.StatusConflict, status)

	status, raw = do(t, app, http.MethodPost, "/api/users/login", "", fiber.Map{"email": "ada@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "step1", object(t, raw)["status"])

	status, raw = do(t, app, http.MethodPost, "/api/admin/login", "", fiber.Map{"email": adminEmail, "password": adminPass})
	require.Equal(t, http.StatusOK, status, string(raw))
	adminToken, _ := object(t, raw)["token"].(string)
	require.NotEmpty(t, adminToken)

	status, raw = do(t, app, http.MethodGet, "/api/admin/search?email=ADA@example.com", adminToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	found := list(t, raw)
	require.Len(t, found, 1)
	userID, _ := found[0]["id"].(string)
	require.NotEmpty(t, userID)
	assert.NotContains(t, found[0], "password")

	status, raw = do(t, app, http.MethodPost, "/api/users/verify-pin", applicantToken, fiber.Map{"pin": "12345"})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = do(t, app, http.MethodPost, "/api/admin/set-pin", adminToken, fiber.Map{"userId": userID, "pin": "12345"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "PIN set", object(t, raw)["message"])

	status, raw = do(t, app, http.MethodPost, "/api/users/verify-pin", applicantToken, fiber.Map{"pin": "54321"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid PIN. Contact admin.", object(t, raw)["message"])

	status, raw = do(t, app, http.MethodPost, "/api/users/select-plan", applicantToken, fiber.Map{"plan": "gold"})
	assert.Equal(t, http.StatusForbidden, status, string(raw))

	status, raw = do(t, app, http.MethodPost, "/api/users/verify-pin", applicantToken, fiber.Map{"pin": "12345"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "step2", object(t, raw)["status"])

	status, raw = do(t, app, http.MethodPost, "/api/users/select-plan", applicantToken, fiber.Map{"plan": "gold"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "step2", object(t, raw)["status"])

	status, raw = do(t, app, http.MethodPost, "/api/users/complete-idcard", applicantToken, nil)
	assert.Equal(t, http.StatusForbidden, status, string(raw))

	status, raw = do(t, app, http.MethodPost, "/api/admin/approve", adminToken, fiber.Map{"userId": userID, "step": "plan"})
	require.Equal(t, http.StatusOK, status, string(raw))
	approved := object(t, raw)
	assert.Equal(t, "Approved plan", approved["message"])
	assert.Equal(t, "step3", approved["status"])

	status, raw = do(t, app, http.MethodPost, "/api/users/complete-idcard", applicantToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = do(t, app, http.MethodPost, "/api/admin/approve", adminToken, fiber.Map{"userId": userID, "step": "idcard"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "completed", object(t, raw)["status"])

	status, raw = do(t, app, http.MethodPost, "/api/admin/approve", adminToken, fiber.Map{"userId": userID, "step": "pin"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "completed", object(t, raw)["status"])

	// the token still carries step1; the profile reads the live record
	status, raw = do(t, app, http.MethodGet, "/api/users/profile", applicantToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	profile, _ := object(t, raw)["user"].(map[string]any)
	require.NotNil(t, profile)
	assert.Equal(t, "completed", profile["status"])
	assert.Equal(t, "gold", profile["plan"])
	assert.Equal(t, "+237650000000", profile["phone"])
	assert.Equal(t, []any{"pin", "plan", "idcard"}, profile["approvedSteps"])
	assert.NotContains(t, profile, "password")
	assert.NotContains(t, profile, "pin")

	status, raw = do(t, app, http.MethodGet, "/api/admin/users/"+userID+"/history", adminToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Len(t, list(t, raw), 8)

	assert.Equal(t, 1, notifier.count(notification.KindUserRegistered))
	assert.Equal(t, 1, notifier.count(notification.KindUserLogin))
	assert.Equal(t, 3, notifier.count(notification.KindStepApproved))
}

func TestAuthorizationStatusCodes(t *testing.T) {
	app, _ := newTestApp(t)

	status, raw := do(t, app, http.MethodPost, "/api/users/register", "", ada)
	require.Equal(t, http.StatusCreated, status, string(raw))
	applicantToken, _ := object(t, raw)["token"].(string)

	status, raw = do(t, app, http.MethodPost, "/api/users/login", "", fiber.Map{"email": adminEmail, "password": adminPass})
	require.Equal(t, http.StatusOK, status, string(raw))
	adminLogin := object(t, raw)
	assert.Equal(t, true, adminLogin["isAdmin"])
	adminToken, _ := adminLogin["token"].(string)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"profile without token", http.MethodGet, "/api/users/profile", "", http.StatusUnauthorized},
		{"profile with garbage", http.MethodGet, "/api/users/profile", "garbage", http.StatusUnauthorized},
		{"profile as admin", http.MethodGet, "/api/users/profile", adminToken, http.StatusForbidden},
		{"users without token", http.MethodGet, "/api/admin/users", "", http.StatusUnauthorized},
		{"users as applicant", http.MethodGet, "/api/admin/users", applicantToken, http.StatusForbidden},
		{"users as admin", http.MethodGet, "/api/admin/users", adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := do(t, app, tc.method, tc.path, tc.token, nil)
			assert.Equal(t, tc.status, status)
		})
	}

	status, _ = do(t, app, http.MethodPost, "/api/admin/login", "", fiber.Map{"email": "ada@example.com", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, http.MethodPost, "/api/users/login", "", fiber.Map{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestValidationErrors(t *testing.T) {
	app, _ := newTestApp(t)

	status, raw := do(t, app, http.MethodPost, "/api/users/register", "", fiber.Map{"email": "not-an-email", "phone": "12", "country": "CM", "password": "short"})
	require.Equal(t, http.StatusBadRequest, status, string(raw))
	fields, _ := object(t, raw)["errors"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "password")

	long := fiber.Map{"name": "Ada", "email": "ada@example.com", "phone": "+237650000000", "country": "CM", "password": strings.Repeat("p", 100)}
	status, raw = do(t, app, http.MethodPost, "/api/users/register", "", long)
	require.Equal(t, http.StatusBadRequest, status, string(raw))
	fields, _ = object(t, raw)["errors"].(map[string]any)
	assert.Contains(t, fields, "password")

	status, raw = do(t, app, http.MethodPost, "/api/admin/login", "", fiber.Map{"email": adminEmail, "password": adminPass})
	require.Equal(t, http.StatusOK, status)
	adminToken, _ := object(t, raw)["token"].(string)

	status, raw = do(t, app, http.MethodPost, "/api/admin/approve", adminToken, fiber.Map{"userId": "someone", "step": "banana"})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))
	fields, _ = object(t, raw)["errors"].(map[string]any)
	assert.Contains(t, fields, "step")

	status, _ = do(t, app, http.MethodPost, "/api/admin/approve", adminToken, fiber.Map{"userId": "someone", "step": "pin"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPost, "/api/admin/set-pin", adminToken, fiber.Map{"userId": "someone", "pin": "12a"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodGet, "/api/admin/search", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBannerAndHealth(t *testing.T) {
	app, _ := newTestApp(t)

	status, raw := do(t, app, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, bannerText, string(raw))

	status, raw = do(t, app, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	checks, _ := object(t, raw)["status"].(map[string]any)
	assert.Equal(t, config.DriverMemory, checks["storage"])
}

func TestIdempotencyKeyNeverCrossesRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	app, _ := newTestAppWithCache(t, cache)

	first := fiber.Map{"name": "Ada", "email": "a@x.com", "phone": "+237650000000", "country": "CM", "password": "password1"}
	second := fiber.Map{"name": "Bob", "email": "b@x.com", "phone": "+237650000001", "country": "CM", "password": "password2"}
	status, rawA := doWithKey(t, app, http.MethodPost, "/api/users/register", "", "k1", first)
	require.Equal(t, http.StatusCreated, status, string(rawA))
	status, rawB := doWithKey(t, app, http.MethodPost, "/api/users/register", "", "k1", second)
	require.Equal(t, http.StatusCreated, status, string(rawB))
	assert.NotEqual(t, object(t, rawA)["token"], object(t, rawB)["token"])

	status, raw := do(t, app, http.MethodPost, "/api/admin/login", "", fiber.Map{"email": adminEmail, "password": adminPass})
	require.Equal(t, http.StatusOK, status)
	adminToken, _ := object(t, raw)["token"].(string)

	status, raw = do(t, app, http.MethodGet, "/api/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	users := list(t, raw)
	require.Len(t, users, 2)
	userID, _ := users[0]["id"].(string)

	status, raw = doWithKey(t, app, http.MethodPost, "/api/admin/set-pin", adminToken, "k2", fiber.Map{"userId": userID, "pin": "12345"})
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = doWithKey(t, app, http.MethodPost, "/api/admin/approve", adminToken, "k2", fiber.Map{"userId": userID, "step": "plan"})
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(raw))

	status, raw = doWithKey(t, app, http.MethodPost, "/api/admin/approve", adminToken, "k3", fiber.Map{"userId": userID, "step": "plan"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "step3", object(t, raw)["status"])

	status, raw = doWithKey(t, app, http.MethodPost, "/api/admin/approve", adminToken, "k3", fiber.Map{"userId": userID, "step": "plan"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "Approved plan", object(t, raw)["message"])
}
