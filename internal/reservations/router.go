package reservations

import (
	"showtix/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupReservationRoutes configures the reservation routes
func SetupReservationRoutes(rg *gin.RouterGroup, controller *Controller) {
	r := rg.Group("/reservations")
	r.Use(middleware.Identity())
	{
		r.POST("", controller.Reserve)
		r.GET("/:id", controller.GetReservation)
	}
}
