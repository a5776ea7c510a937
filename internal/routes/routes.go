package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/olympic-platform/onboarding/internal/activity"
	"github.com/olympic-platform/onboarding/internal/auth"
	"github.com/olympic-platform/onboarding/internal/config"
	"github.com/olympic-platform/onboarding/internal/identity"
	"github.com/olympic-platform/onboarding/internal/middleware"
	"github.com/olympic-platform/onboarding/internal/notification"
	"github.com/olympic-platform/onboarding/internal/onboarding"
)

const bannerText = "Olympic Platform API is running."

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Mongo    *mongo.Client
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	users, history, err := storage(d)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(d.Cfg.JWTSecret, d.Cfg.TokenTTL)
	if err != nil {
		return err
	}
	identitySvc := identity.NewService(users, identity.NewHasher(d.Cfg.BcryptCost))
	admin := auth.AdminCredentials{Email: d.Cfg.AdminUser, Password: d.Cfg.AdminPass}
	authSvc := auth.NewService(identitySvc, tokens, admin, d.Notifier, d.Logger)
	onboardingSvc := onboarding.NewService(identitySvc, history, d.Notifier, d.Logger)

	authHandler := auth.NewHandler(authSvc)
	onboardingHandler := onboarding.NewHandler(onboardingSvc, authSvc)

	// Middlewares
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(bannerText)
	})
	RegisterHealthRoutes(app, d)

	g := gates{
		requireAuth: middleware.RequireAuth(tokens),
		rateLimit:   middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit),
		idempotent:  middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		applicant:   middleware.RequireApplicant(),
		adminOnly:   middleware.RequireAdmin(),
	}

	api := app.Group("/api")
	RegisterUserRoutes(api, g, authHandler, onboardingHandler)
	RegisterAdminRoutes(api, g, authHandler, onboardingHandler)
	return nil
}

type gates struct {
	requireAuth fiber.Handler
	rateLimit   fiber.Handler
	idempotent  fiber.Handler
	applicant   fiber.Handler
	adminOnly   fiber.Handler
}

func storage(d Deps) (identity.Repository, activity.Log, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch d.Cfg.StorageDriver {
	case config.DriverPostgres:
		if d.DB == nil {
			return nil, nil, fmt.Errorf("postgres pool is required for STORAGE_DRIVER=%s", d.Cfg.StorageDriver)
		}
		repo := identity.NewPostgresRepository(d.DB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure users schema: %w", err)
		}
		history := activity.NewPostgresLog(d.DB)
		if err := history.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure activity schema: %w", err)
		}
		return repo, history, nil
	case config.DriverMongo:
		if d.Mongo == nil {
			return nil, nil, fmt.Errorf("mongo client is required for STORAGE_DRIVER=%s", d.Cfg.StorageDriver)
		}
		db := d.Mongo.Database(d.Cfg.MongoDatabase)
		repo := identity.NewMongoRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure users indexes: %w", err)
		}
		history := activity.NewMongoLog(db)
		if err := history.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure activity indexes: %w", err)
		}
		return repo, history, nil
	case config.DriverMemory, "":
		return identity.NewMemoryRepository(), activity.NewInMemory(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", d.Cfg.StorageDriver)
	}
}
