package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/config"
	"github.com/vendibot/vendibot-backend/internal/handlers"
	"github.com/vendibot/vendibot-backend/internal/middleware"
	"github.com/vendibot/vendibot-backend/internal/services"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, store storage.Store, engine *services.Engine, fetcher handlers.QuotedFetcher) {

	healthHandler := handlers.NewHealthHandler("1.0.0")
	merchantHandler := handlers.NewMerchantHandler(store)
	productHandler := handlers.NewProductHandler(store)
	orderHandler := handlers.NewOrderHandler(store)
	analyticsHandler := handlers.NewAnalyticsHandler(store)
	adminHandler := handlers.NewAdminHandler(store)
	whatsappHandler := handlers.NewWhatsAppHandler(engine, fetcher)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to VendiBot Backend!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":        "/health",
				"api":           "/api",
				"webhook":       "/webhook/whatsapp",
				"test_whatsapp": "/test/whatsapp",
			},
		})
	})

	// Health check
	app.Get("/health", healthHandler.Check)

	// API routes
	api := app.Group("/api")

	// Merchant routes
	merchants := api.Group("/merchants")
	merchants.Post("/register", merchantHandler.Register)
	merchants.Get("/", merchantHandler.List)
	merchants.Get("/:id", merchantHandler.Get)
	merchants.Put("/:id", merchantHandler.Update)

	// Catalog routes, scoped to a merchant
	merchants.Post("/:id/products", productHandler.Create)
	merchants.Get("/:id/products", productHandler.List)
	merchants.Get("/:id/products/:sku", productHandler.Get)
	merchants.Put("/:id/products/:sku", productHandler.Update)

	// Order routes
	merchants.Get("/:id/orders", orderHandler.ListByMerchant)
	merchants.Get("/:id/stats", analyticsHandler.GetMerchantStats)

	orders := api.Group("/orders")
	orders.Get("/:id", orderHandler.Get)
	orders.Put("/:id/status", orderHandler.UpdateStatus)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// Signature validation is environment-aware inside the middleware
	if cfg.DisableWebhookValidation || cfg.Environment == "development" {
		logrus.Warn("⚠️  WhatsApp webhook validation DISABLED")
	}
	webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(cfg), whatsappHandler.HandleWebhook)

	// ========== TEST ROUTES (Development Only) ==========
	// Test WhatsApp endpoint (for development)
	app.Post("/test/whatsapp", whatsappHandler.HandleTestWebhook)

	// ========== ADMIN ROUTES ==========
	admin := app.Group("/admin", middleware.RequireAdminKey(cfg))
	admin.Get("/overview", adminHandler.GetPlatformOverview)
	admin.Delete("/sessions/:address", adminHandler.PurgeSession)
	admin.Delete("/sessions", adminHandler.PurgeAllSessions)
}
