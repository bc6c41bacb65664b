package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wirehooks/eventbus-svc/internal/bus"
	"github.com/wirehooks/eventbus-svc/internal/config"
	"github.com/wirehooks/eventbus-svc/internal/database"
	"github.com/wirehooks/eventbus-svc/internal/executor"
	"github.com/wirehooks/eventbus-svc/internal/handlers"
	"github.com/wirehooks/eventbus-svc/internal/ledger"
	"github.com/wirehooks/eventbus-svc/internal/logger"
	"github.com/wirehooks/eventbus-svc/internal/notify"
	"github.com/wirehooks/eventbus-svc/internal/observability"
	"github.com/wirehooks/eventbus-svc/internal/rabbitmq"
	"github.com/wirehooks/eventbus-svc/internal/registry"
	"github.com/wirehooks/eventbus-svc/internal/routes"
	"github.com/wirehooks/eventbus-svc/internal/scheduler"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	// Storage backend: in-memory by default, Postgres when configured.
	var st store.Store
	var db *gorm.DB
	if cfg.Store.Backend == config.BackendPostgres {
		if err := database.RunMigrations(&cfg.Database, log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
		db, err = database.Connect(&cfg.Database, log)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := database.Close(db, log); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		st = store.NewGormStore(db)
	} else {
		st = store.NewMemoryStore()
	}

	broker := notify.NewChannelBroker(log)
	defer broker.Close()

	// Log every notification; observers are decoupled from the mutations
	// that produce them.
	auditCh, cancelAudit := broker.Subscribe(256)
	defer cancelAudit()
	go func() {
		for notification := range auditCh {
			log.Debug("Notification",
				zap.String("kind", notification.Kind),
				zap.Time("at", notification.Timestamp),
			)
		}
	}()

	// Optional AMQP mirroring of notifications.
	var rmq *rabbitmq.Connection
	if cfg.Broker.URL != "" {
		rmq = rabbitmq.NewConnection(&cfg.Broker, log)
		if err := rmq.Connect(); err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()

		mirrorCh, cancelMirror := broker.Subscribe(1024)
		defer cancelMirror()
		go notify.NewAMQPMirror(rmq, log).Run(mirrorCh)
	}

	metrics, metricsHandler, err := observability.NewMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	led := ledger.New(st.Deliveries(), log)
	exec := executor.New(log)
	sched := scheduler.New(led, st.Subscriptions(), st.Events(), exec, metrics, log)
	defer sched.Shutdown()
	reg := registry.New(st.Subscriptions(), broker, log)
	eventBus := bus.New(st, reg, led, sched, broker, metrics, log)

	app := fiber.New(fiber.Config{
		AppName:      "Eventbus Service",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app,
		handlers.NewEventsHandler(eventBus, log),
		handlers.NewSubscriptionsHandler(eventBus, log),
		handlers.NewDeliveriesHandler(eventBus, log),
		handlers.NewHealthHandler(db, rmq),
		metricsHandler,
	)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	// Pending retries are timer-backed and lost on restart; stop them
	// cleanly before the stores go away.
	sched.Shutdown()

	log.Info("Server stopped")
}
