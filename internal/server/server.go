package server

import (
	"context"
	"time"

	"deep-research-agent/internal/bootstrap"
	"deep-research-agent/internal/config"
	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: cfg.App.Environment == "production",
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware())

	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.container.Logger.Info(constant.LogModuleHTTP, "Server is running", map[string]interface{}{
		"address": "http://localhost:" + s.cfg.App.Port,
	})
	return s.app.Listen(":" + s.cfg.App.Port)
}

// Shutdown stops accepting requests, then lets a background run record its
// outcome before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	return s.container.ResearchService.Shutdown(ctx)
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	api := app.Group("/api")
	c.ResearchController.RegisterRoutes(api, serverutils.NewJwtMiddleware(cfg.App.JWTSecret))
}
