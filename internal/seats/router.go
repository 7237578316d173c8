package seats

import "github.com/gin-gonic/gin"

// SetupSeatRoutes configures the seat map routes
func SetupSeatRoutes(rg *gin.RouterGroup, controller *Controller) {
	r := rg.Group("/shows")
	{
		r.GET("/:show_id/seats", controller.ListSeats)
	}
}
