package main

import (
	"context"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"maplemail/config"
	controller "maplemail/controllers"
	"maplemail/middleware"
	"maplemail/routes"
	"maplemail/store"
	"maplemail/utils"
	"maplemail/worker"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.Fatalf("Failed to initialize sentry: %v", err)
		}
	}

	// Initialize database connection
	db, err := config.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sequences := store.NewSequenceStore(db)
	users := store.NewUserStore(db)
	events := store.NewEventStore(db)
	logs := store.NewLogStore(db)

	mailer := utils.NewSMTPMailer(cfg.SMTP)

	var lock worker.Locker = worker.NoopLock{}
	if cfg.Redis.Enabled {
		lock = worker.NewRedisLock(cfg.Redis)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start dispatch workers
	scheduled := worker.NewScheduledDispatcher(sequences, users, logs, mailer, lock,
		cfg.Location(), cfg.DispatchHour, log.WithField("component", "scheduled"))
	go scheduled.Start(ctx)

	sweeper := worker.NewRetrySweeper(sequences, logs, mailer, lock, log.WithField("component", "retry"))
	go sweeper.Start(ctx)

	if cfg.IMAP.Host != "" {
		bounces := worker.NewBounceWatcher(cfg.IMAP, logs, log.WithField("component", "bounce"))
		go bounces.Start(ctx)
	}

	eventDispatcher := worker.NewEventDispatcher(sequences, users, logs, mailer,
		log.WithField("component", "event"))

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	eventController := controller.NewEventController(events, eventDispatcher, log.WithField("component", "events"))
	authController := controller.NewAuthController(cfg.JWTSecret, cfg.AdminAPIKeyHash, log.WithField("component", "auth"))
	adminController := controller.NewAdminController(sequences, logs, log.WithField("component", "admin"))

	routes.SetupRoutes(app, cfg, eventController, authController, adminController)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	log.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
