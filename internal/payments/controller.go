package payments

import (
	"net/http"

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

// CreatePayment starts the payment saga for a reservation.
func (c *Controller) CreatePayment(ctx *gin.Context) {
	var request CreatePaymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	request.IdempotencyKey = ctx.GetHeader("Idempotency-Key")
	if request.IdempotencyKey == "" {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Idempotency-Key header is required", nil, nil)
		return
	}

	payment, err := c.service.CreatePayment(ctx.Request.Context(), &request)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusAccepted, "Payment accepted", payment, nil)
}

// GetPayment returns the saga state for status polling.
func (c *Controller) GetPayment(ctx *gin.Context) {
	paymentID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid payment ID", nil, nil)
		return
	}

	payment, err := c.service.GetPayment(ctx.Request.Context(), paymentID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Payment", payment, nil)
}
