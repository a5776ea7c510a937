package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/olympic-platform/onboarding/internal/config"
	"github.com/olympic-platform/onboarding/internal/httpx"
	"github.com/olympic-platform/onboarding/internal/notification"
	"github.com/olympic-platform/onboarding/internal/routes"
)

// Backends are the optional external stores the server talks to.
type Backends struct {
	DB    *pgxpool.Pool
	Mongo *mongo.Client
	Cache *redis.Client
}

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	dispatcher *notification.Dispatcher
}

// New instantiates the HTTP server, the notification dispatcher and delegates
// route wiring to routes.Setup.
func New(cfg config.Config, backends Backends, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: httpx.ErrorHandler(logger),
	})

	sink, err := notificationSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := notification.NewDispatcher(sink, cfg.NotifyQueue, logger)

	err = routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       backends.DB,
		Mongo:    backends.Mongo,
		Cache:    backends.Cache,
		Notifier: dispatcher,
		Logger:   logger,
	})
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return nil, err
	}

	return &Server{app: app, cfg: cfg, dispatcher: dispatcher}, nil
}

func notificationSink(cfg config.Config, logger *slog.Logger) (notification.Notifier, error) {
	if !cfg.MailEnabled() {
		logger.Info("smtp not configured, notifications are logged only")
		return notification.NewLoggerNotifier(logger), nil
	}
	return notification.NewSMTPNotifier(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     strconv.Itoa(cfg.SMTP.Port),
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.AdminEmail,
		To:       cfg.AdminEmail,
	})
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then drains queued notifications.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	return errors.Join(httpErr, s.dispatcher.Close(ctx))
}
