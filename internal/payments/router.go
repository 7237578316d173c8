package payments

import (
	"showtix/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes configures the payment routes
func SetupPaymentRoutes(rg *gin.RouterGroup, controller *Controller) {
	r := rg.Group("/payments")
	r.Use(middleware.Identity())
	{
		r.POST("", controller.CreatePayment)
		r.GET("/:id", controller.GetPayment)
	}
}
