package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"showtix/api/routes"
	"showtix/internal/idempotency"
	"showtix/internal/payments"
	"showtix/internal/queue"
	"showtix/internal/reservations"
	"showtix/internal/seats"
	"showtix/internal/shared/config"
	"showtix/internal/shared/database"
	"showtix/internal/shared/middleware"
	"showtix/pkg/logger"
	"showtix/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Seat lock backend: distributed when Redis backs the queue too,
	// in-process for single-node runs.
	var locker seats.Locker
	lockConfig := seats.LockConfig{
		WaitTime:      cfg.Lock.WaitTime,
		LeaseTime:     cfg.Lock.LeaseTime,
		RetryInterval: cfg.Lock.RetryInterval,
	}
	if cfg.Queue.Backend == "memory" {
		locker = seats.NewLocalLocker(lockConfig)
	} else {
		redisLocker := seats.NewRedisLocker(db.GetRedisClient(), lockConfig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := redisLocker.PreloadScripts(ctx); err != nil {
			// Scripts fall back to plain EVAL on first use.
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
		}
		cancel()
		locker = redisLocker
	}

	publisher, err := payments.NewKafkaPublisher(payments.PublisherConfig{
		Brokers: cfg.Kafka.Brokers,
		Retries: cfg.Kafka.ProducerRetries,
		Timeout: cfg.Kafka.ProducerTimeout,
	})
	if err != nil {
		appLogger.Error("failed to create saga publisher", slog.Any("error", err))
		os.Exit(1)
	}
	defer publisher.Close()

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			WindowDuration:  cfg.RateLimit.WindowDuration,
			DefaultRequests: cfg.RateLimit.DefaultRequests,
			QueueRequests:   cfg.RateLimit.QueueRequests,
			ReserveRequests: cfg.RateLimit.ReserveRequests,
			PaymentRequests: cfg.RateLimit.PaymentRequests,
			WhitelistedIPs:  cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	appRouter := routes.NewRouter(cfg, db, locker, publisher)
	engine := setupEngine(rateLimiter)
	appRouter.SetupRoutes(engine)

	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()

	// Saga consumer: drives payment state off the bus.
	chargeClient := payments.NewHTTPChargeClient(cfg.Payment.ChargeURL, cfg.Payment.ChargeTimeout)
	orchestrator := payments.NewOrchestrator(
		appRouter.PaymentRepository(),
		publisher,
		chargeClient,
		appRouter.ReservationService(),
		payments.OrchestratorConfig{
			ChargeMaxAttempts: cfg.Payment.ChargeMaxAttempts,
			ChargeBackoff:     cfg.Payment.ChargeBackoff,
		},
		appLogger,
	)
	consumer, err := payments.NewConsumer(orchestrator, appRouter.PaymentRepository(), publisher, payments.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.ConsumerGroup,
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
		HandlerRetries:  cfg.Kafka.HandlerRetries,
		HandlerBackoff:  cfg.Kafka.HandlerBackoff,
	}, appLogger)
	if err != nil {
		appLogger.Error("failed to create saga consumer", slog.Any("error", err))
		os.Exit(1)
	}
	consumer.Start(jobCtx)
	defer func() {
		if err := consumer.Stop(); err != nil {
			appLogger.Error("Error stopping saga consumer", slog.Any("error", err))
		}
	}()

	// Background sweeps.
	promoteJob := queue.NewJobProcessor(appRouter.QueueService(), cfg.Queue.PromoteInterval)
	promoteJob.Start(jobCtx)
	defer promoteJob.Stop()

	holdSweep := reservations.NewJobProcessor(appRouter.ReservationService(), cfg.Reservation.SweepInterval)
	holdSweep.Start(jobCtx)
	defer holdSweep.Stop()

	stuckSweep := payments.NewJobProcessor(
		appRouter.PaymentRepository(),
		publisher,
		cfg.Payment.ProcessingDeadline,
		cfg.Payment.SweepInterval,
		cfg.Payment.SweepBatch,
	)
	stuckSweep.Start(jobCtx)
	defer stuckSweep.Stop()

	cleanupJob := idempotency.NewJobProcessor(appRouter.IdempotencyRepository(), cfg.Idempotency.CleanupInterval)
	cleanupJob.Start(jobCtx)
	defer cleanupJob.Stop()

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.String("queue_backend", cfg.Queue.Backend),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupEngine(rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-User-Id", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	return engine
}
