package api

import (
	_ "embed"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/service"
)

//go:embed static/index.html
var indexHTML []byte

// NewApp builds the Fiber application with middleware and routes.
func NewApp(h *Handler, sessions *service.Sessions, bodyLimit int, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	RegisterRoutes(app, h, sessions)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler, sessions *service.Sessions) {
	app.Get("/health", h.Health)
	app.Get("/", h.Index)

	api := app.Group("/api", SessionMiddleware(sessions))
	api.Get("/session", h.Session)
	api.Get("/history", h.History)
	api.Get("/models", h.ListModels)
	api.Post("/documents", h.UploadDocuments)
	api.Post("/urls", h.AddURL)
	api.Post("/ask", h.Ask)
	api.Post("/reset", h.Reset)
}
