package reservations

import (
	"net/http"

	"showtix/internal/shared/middleware"
	"showtix/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{
		service: service,
	}
}

// Reserve attempts to hold the requested seats for the caller.
func (c *Controller) Reserve(ctx *gin.Context) {
	var request ReserveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	request.IdempotencyKey = ctx.GetHeader("Idempotency-Key")
	if request.IdempotencyKey == "" {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Idempotency-Key header is required", nil, nil)
		return
	}

	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	reservation, err := c.service.Reserve(ctx.Request.Context(), userID, &request)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Reservation created", reservation, nil)
}

// GetReservation returns the caller's reservation for status polling.
func (c *Controller) GetReservation(ctx *gin.Context) {
	reservationID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid reservation ID", nil, nil)
		return
	}

	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	reservation, err := c.service.GetReservation(ctx.Request.Context(), userID, reservationID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Reservation", reservation, nil)
}
