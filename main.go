package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/database"
	"github.com/vendibot/vendibot-backend/internal/config"
	"github.com/vendibot/vendibot-backend/internal/handlers"
	"github.com/vendibot/vendibot-backend/internal/jobs"
	"github.com/vendibot/vendibot-backend/internal/logcfg"
	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/routes"
	"github.com/vendibot/vendibot-backend/internal/services"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				logrus.Warn("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	cfg, err := config.New()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logcfg.Setup(cfg.LogLevel)

	// Initialize storage
	var store storage.Store

	if cfg.UseMemoryStore {
		logrus.Warn("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		// Connect to database
		logrus.Info("📦 Connecting to PostgreSQL database...")
		database.Connect()

		// Run migrations
		logrus.Info("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Merchant{},
			&models.Product{},
			&models.Presentation{},
			&models.Customer{},
			&models.Order{},
			&models.OrderItem{},
			&models.Session{},
		)
		if err != nil {
			logrus.Fatalf("Failed to migrate database: %v", err)
		}
		logrus.Info("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		logrus.Info("✅ Using PostgreSQL database storage")
	}

	// Set global instance
	storage.SetStore(store)

	// Initialize the messenger. Without Twilio credentials outbound messages
	// go to the log, which is enough for the test webhook.
	var messenger services.Messenger
	var fetcher handlers.QuotedFetcher

	twilioMessenger, err := services.NewTwilioMessenger(cfg)
	if err != nil {
		logrus.Warnf("⚠️  Twilio not configured (%v) - outbound messages go to the log", err)
		messenger = services.ConsoleMessenger{}
	} else {
		messenger = twilioMessenger
		fetcher = twilioMessenger
		logrus.Info("✅ Twilio messenger initialized")
	}

	// Initialize conversation services
	orderService := services.NewOrderService(store, messenger)
	relayService := services.NewRelayService(store, messenger)
	idleSupervisor := services.NewInactivitySupervisor(store, messenger, cfg.WarnAfter(), cfg.KillAfter())

	engine := services.NewEngine(store, messenger, orderService, relayService, idleSupervisor)
	idleSupervisor.UseTurnLocks(engine.TurnLock)

	// Sweep sessions whose timers were lost across restarts
	cleanupJob := jobs.NewCleanupJob(store, messenger, cfg.WarnAfter()+cfg.KillAfter())
	cleanupJob.UseTurnLocks(engine.TurnLock)
	cleanupJob.Start()

	// Nudge merchants about orders they have not confirmed
	reminderJob := jobs.NewReminderJob(store, messenger, cfg.RemindAfter())
	reminderJob.Start()

	logrus.Info("✅ All services initialized")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "VendiBot Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Setup routes
	routes.SetupRoutes(app, cfg, store, engine, fetcher)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logrus.Info("🛑 Gracefully shutting down...")
		logrus.Info("⏹️  Stopping background jobs...")
		cleanupJob.Stop()
		reminderJob.Stop()
		idleSupervisor.Stop()
		logrus.Info("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	logrus.Info("========================================")
	logrus.Infof("🚀 VendiBot Backend starting on port %s", cfg.Port)
	logrus.Infof("📊 Storage: %s", storageType(cfg))
	logrus.Infof("🌍 Environment: %s", cfg.Environment)
	logrus.Infof("📱 WhatsApp: %s", whatsappStatus(cfg))
	logrus.Info("========================================")

	logrus.Fatal(app.Listen(":" + cfg.Port))
}

func storageType(cfg *config.Config) string {
	if cfg.UseMemoryStore {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func whatsappStatus(cfg *config.Config) string {
	if cfg.TwilioAccountSID == "" {
		return "Not configured"
	}
	return "Configured"
}
