package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	controller "maplemail/controllers"
	"maplemail/config"
	"maplemail/middleware"
)

// SetupRoutes wires the event intake and the admin surface.
func SetupRoutes(app *fiber.App, cfg *config.Config, eventController *controller.EventController, authController *controller.AuthController, adminController *controller.AdminController) {
	requestLogger := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	// Token exchange for the admin surface
	app.Post("/auth/token", requestLogger, authController.Token)

	// Event intake: the consumer app posts domain events here
	api := app.Group("/api", requestLogger)
	api.Post("/events", eventController.CreateEvent)

	// Read-only admin surface (requires a service token)
	admin := app.Group("/api/v1", middleware.Protected(cfg.JWTSecret), requestLogger)
	admin.Get("/sequences", adminController.ListSequences)
	admin.Get("/sequences/:id", adminController.GetSequence)
	admin.Get("/logs", adminController.ListLogs)

	admin.Use("/logs/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	admin.Get("/logs/ws", websocket.New(adminController.StreamLogs))
}
