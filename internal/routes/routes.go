package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/eventhub/internal/config"
	"github.com/example/eventhub/internal/handlers"
	"github.com/example/eventhub/internal/middleware"
	"github.com/example/eventhub/internal/models"
	"github.com/example/eventhub/internal/services"
	"github.com/example/eventhub/internal/store"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, st store.Store, transactions *services.TransactionService) {
	authHandler := handlers.NewAuthHandler(st, cfg.JWTSecret, cfg.TokenExpires)
	transactionHandler := handlers.NewTransactionHandler(transactions)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})
	if cfg.EnableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
	if cfg.ProofStorageDir != "" {
		app.Static("/uploads", cfg.ProofStorageDir)
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	customer := protected.Group("/transactions", middleware.RequireRole(models.RoleCustomer))
	customer.Post("/", transactionHandler.Create)
	customer.Get("/", transactionHandler.List)
	customer.Get("/:id", transactionHandler.Get)
	customer.Post("/:id/payment-proof", transactionHandler.UploadProof)
	customer.Post("/:id/cancel", transactionHandler.Cancel)

	organizer := protected.Group("/organizer/transactions", middleware.RequireRole(models.RoleOrganizer))
	organizer.Get("/", transactionHandler.OrganizerList)
	organizer.Get("/:id", transactionHandler.OrganizerGet)
	organizer.Post("/:id/accept", transactionHandler.Accept)
	organizer.Post("/:id/reject", transactionHandler.Reject)
}
