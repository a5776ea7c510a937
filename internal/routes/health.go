package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const healthOK = "ok"

// RegisterHealthRoutes adds a readiness endpoint probing every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{"storage": d.Cfg.StorageDriver}
		healthy := true
		probe := func(name string, err error) {
			if err != nil {
				healthy = false
				checks[name] = err.Error()
				return
			}
			checks[name] = healthOK
		}
		if d.DB != nil {
			probe("postgres", d.DB.Ping(ctx))
		}
		if d.Mongo != nil {
			probe("mongo", d.Mongo.Ping(ctx, readpref.Primary()))
		}
		if d.Cache != nil {
			probe("redis", d.Cache.Ping(ctx).Err())
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
