package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anax-commerce/commerce-service/internal/config"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/anax-commerce/commerce-service/internal/gateway"
	"github.com/anax-commerce/commerce-service/internal/handlers"
	"github.com/anax-commerce/commerce-service/internal/invoice"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/messaging"
	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/anax-commerce/commerce-service/internal/service"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	if cfg.JWTSecret == "" || cfg.WebhookSecret == "" {
		log.Fatal().Msg("JWT_SECRET and WEBHOOK_SECRET are required")
	}
	deliveryFee, err := cfg.DeliveryFeeAmount()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid delivery fee")
	}

	log.Info().Str("appName", cfg.AppName).Msg("Application starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	store, err := repository.NewPostgresStore(ctx, repository.PostgresConfig{
		DSN:             cfg.DSN(),
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxOpenConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	// RabbitMQ
	rabbitClient := messaging.NewRabbitMQClient(cfg.RabbitMQ())
	if err := rabbitClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer rabbitClient.Close()

	publisher := messaging.NewPublisher(rabbitClient)
	consumer := messaging.NewConsumer(rabbitClient, cfg.RabbitMQQueue, events.ServiceName)

	checks := map[string]handlers.HealthCheck{
		"database": store.Ping,
		"rabbitmq": func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}

	// Locks are shared through Redis when several replicas run.
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		locker = lock.NewRedis(redisClient, cfg.LockTTL)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis locks")
	} else {
		locker = lock.NewLocal()
		log.Warn().Msg("REDIS_ADDR not set, using process local locks")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	tracker := service.NewTracker(store, m)
	mobileMoney := gateway.NewSandboxGateway(cfg.GatewayFailureRate, 200*time.Millisecond)

	cartService := service.NewCartService(store, locker, cfg.LockWait)
	orderService := service.NewOrderService(store, locker, tracker, publisher,
		invoice.NewRenderer(cfg.AppName, cfg.Currency), m,
		service.OrderConfig{DeliveryFee: deliveryFee, LockWait: cfg.LockWait})
	paymentService := service.NewPaymentService(store, locker, tracker, mobileMoney, publisher, m,
		service.PaymentConfig{
			Timeout:  cfg.PaymentTimeout,
			Currency: cfg.Currency,
			LockWait: cfg.LockWait,
		})

	if err := consumer.ConsumeEvents(ctx, service.ReconciliationCommands, paymentService.HandleCommand); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reconciliation consumer")
	}

	app := setupFiberApp(cfg.AppName)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handlers.Register(app, handlers.Routes{
		Cart:      handlers.NewCartHandler(cartService),
		Order:     handlers.NewOrderHandler(orderService, tracker),
		Payment:   handlers.NewPaymentHandler(paymentService),
		Webhook:   handlers.NewWebhookGuard([]byte(cfg.WebhookSecret), cfg.WebhookRatePerSecond, cfg.WebhookBurst),
		JWTSecret: []byte(cfg.JWTSecret),
		Checks:    checks,
	})
	app.Use("*", func(c *fiber.Ctx) error {
		return sharedHTTP.NotFoundResponse(c, "Route not found", nil)
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info().Msg("Application shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server start error")
	}
}

func setupLogging(cfg config.Config) {
	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", cfg.AppName).Logger()
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupFiberApp(appName string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      appName,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return sharedHTTP.ErrorResponse(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message, nil)
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	return sharedHTTP.RetryLaterResponse(c)
}
