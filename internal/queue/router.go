package queue

import (
	"showtix/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupQueueRoutes configures the waiting-room routes
func SetupQueueRoutes(rg *gin.RouterGroup, controller *Controller) {
	q := rg.Group("/queue")
	q.Use(middleware.Identity())
	{
		q.POST("/token", controller.IssueToken)
		q.GET("/status/:target_id", controller.CheckStatus)
	}
}
