package seats

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"showtix/internal/shared/utils/response"
	"showtix/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Seat maps churn fast during a sale, so the cache TTL is short: stale
// AVAILABLE entries only cost the viewer a conflict on reserve.
const seatMapCacheTTL = 3 * time.Second

type Controller struct {
	service Service
	cache   cache.Service
}

func NewController(service Service, cacheService cache.Service) *Controller {
	return &Controller{
		service: service,
		cache:   cacheService,
	}
}

// ListSeats returns the seat map for a show.
func (c *Controller) ListSeats(ctx *gin.Context) {
	showID, err := strconv.ParseInt(ctx.Param("show_id"), 10, 64)
	if err != nil || showID <= 0 {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid show ID", nil, nil)
		return
	}

	var seatMap []Seat
	cacheKey := fmt.Sprintf("seatmap:%d", showID)
	cacheErr := c.cache.GetOrSet(ctx.Request.Context(), cacheKey, seatMapCacheTTL, func() (interface{}, error) {
		return c.service.ListSeats(ctx.Request.Context(), showID)
	}, &seatMap)
	if cacheErr != nil {
		// Cache trouble must not take the seat map down.
		seatMap, err = c.service.ListSeats(ctx.Request.Context(), showID)
		if err != nil {
			response.RespondError(ctx, err)
			return
		}
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Seat map", seatMap, nil)
}
