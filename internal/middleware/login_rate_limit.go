package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loginRateLimitPrefix = "rl:login:"
	loginRateWindow      = time.Minute
)

// LoginRateLimit blocks a login subject (email, or IP without one) after
// maxPerMin failed attempts within a minute. Successful logins are not
// counted. Without Redis, or when Redis errors, it lets requests through.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Email string `json:"email"`
		}
		// decode without consuming the body the handler binds later
		_ = json.Unmarshal(c.Body(), &req)
		subject := strings.ToLower(strings.TrimSpace(req.Email))
		if subject == "" {
			subject = c.IP()
		}
		key := loginRateLimitPrefix + subject

		failures, err := cache.Get(c.UserContext(), key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return c.Next() // fail-open on cache errors
		}
		if failures >= int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}

		err = c.Next()
		if loginRejected(c, err) {
			if cnt, incrErr := cache.Incr(c.UserContext(), key).Result(); incrErr == nil && cnt == 1 {
				cache.Expire(c.UserContext(), key, loginRateWindow)
			}
		}
		return err
	}
}

func loginRejected(c *fiber.Ctx, err error) bool {
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code == http.StatusUnauthorized
	}
	return err == nil && c.Response().StatusCode() == http.StatusUnauthorized
}
