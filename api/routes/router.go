// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"showtix/internal/idempotency"
	"showtix/internal/payments"
	"showtix/internal/queue"
	"showtix/internal/reservations"
	"showtix/internal/seats"
	"showtix/internal/shared/config"
	"showtix/internal/shared/database"
	"showtix/pkg/cache"
	"showtix/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies. Services built here are exposed
// through getters so the entrypoint can hang background jobs and the
// saga consumer off the same instances the HTTP layer uses.
type Router struct {
	config    *config.Config
	db        *database.DB
	locker    seats.Locker
	publisher payments.Publisher
	log       *logger.Logger

	idempotencyRepo    idempotency.Repository
	guard              *idempotency.Guard
	queueService       queue.Service
	seatService        seats.Service
	reservationService reservations.Service
	paymentRepo        payments.Repository
	paymentService     payments.Service
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, locker seats.Locker, publisher payments.Publisher) *Router {
	return &Router{
		config:    cfg,
		db:        db,
		locker:    locker,
		publisher: publisher,
		log:       logger.GetDefault(),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupSharedServices()
		r.setupQueueRoutes(api)
		r.setupSeatRoutes(api)
		r.setupReservationRoutes(api)
		r.setupPaymentRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "showtix-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "showtix-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}

// setupSharedServices builds the components more than one feature needs.
func (r *Router) setupSharedServices() {
	r.idempotencyRepo = idempotency.NewRepository(r.db.GetPostgreSQL())
	r.guard = idempotency.NewGuard(r.idempotencyRepo, r.config.Idempotency.RecordTTL, r.log)
}

// setupQueueRoutes configures waiting-room admission routes
func (r *Router) setupQueueRoutes(rg *gin.RouterGroup) {
	var queueRepo queue.Repository
	if r.config.Queue.Backend == "memory" {
		queueRepo = queue.NewMemoryRepository()
	} else {
		queueRepo = queue.NewRedisRepository(r.db.GetRedisClient())
	}

	generator, err := queue.NewBase62TokenGenerator(r.config.Queue.TokenLength)
	if err != nil {
		panic(err)
	}

	r.queueService = queue.NewService(queueRepo, generator, queue.ServiceConfig{
		Capacity:   r.config.Queue.Capacity,
		WaitingTTL: r.config.Queue.WaitingTTL,
		EnteredTTL: r.config.Queue.EnteredTTL,
	}, r.log)
	queueController := queue.NewController(r.queueService)

	queue.SetupQueueRoutes(rg, queueController)
}

// setupSeatRoutes configures seat map routes
func (r *Router) setupSeatRoutes(rg *gin.RouterGroup) {
	seatRepo := seats.NewRepository(r.db.GetPostgreSQL())
	r.seatService = seats.NewService(seatRepo, r.locker, r.log)
	seatController := seats.NewController(r.seatService, cache.NewService(r.db.GetRedisClient()))

	seats.SetupSeatRoutes(rg, seatController)
}

// setupReservationRoutes configures reservation routes
func (r *Router) setupReservationRoutes(rg *gin.RouterGroup) {
	reservationRepo := reservations.NewRepository(r.db.GetPostgreSQL())
	r.reservationService = reservations.NewService(reservationRepo, r.seatService, r.queueService, r.guard, reservations.ServiceConfig{
		HoldDuration: r.config.Reservation.HoldDuration,
		SweepBatch:   r.config.Reservation.SweepBatch,
	}, r.log)
	reservationController := reservations.NewController(r.reservationService)

	reservations.SetupReservationRoutes(rg, reservationController)
}

// setupPaymentRoutes configures payment saga routes
func (r *Router) setupPaymentRoutes(rg *gin.RouterGroup) {
	r.paymentRepo = payments.NewRepository(r.db.GetPostgreSQL())
	r.paymentService = payments.NewService(r.paymentRepo, r.publisher, r.guard, r.log)
	paymentController := payments.NewController(r.paymentService)

	payments.SetupPaymentRoutes(rg, paymentController)
}

// QueueService returns the admission service for the promotion job.
func (r *Router) QueueService() queue.Service {
	return r.queueService
}

// ReservationService returns the reservation service for the saga
// orchestrator and the hold-expiry sweep.
func (r *Router) ReservationService() reservations.Service {
	return r.reservationService
}

// PaymentRepository returns the payment store for the saga consumer and
// the stuck-payment sweep.
func (r *Router) PaymentRepository() payments.Repository {
	return r.paymentRepo
}

// IdempotencyRepository returns the record store for the cleanup job.
func (r *Router) IdempotencyRepository() idempotency.Repository {
	return r.idempotencyRepo
}
