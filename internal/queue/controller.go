package queue

import (
	"net/http"
	"strconv"

	"showtix/internal/shared/middleware"
	"showtix/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{
		service: service,
	}
}

// IssueToken issues (or re-returns) the caller's waiting-room token.
func (c *Controller) IssueToken(ctx *gin.Context) {
	var request IssueTokenRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	token, err := c.service.IssueToken(ctx.Request.Context(), userID, request.TargetID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Queue token issued", NewTokenResponse(token), nil)
}

// CheckStatus returns the token's current status and rank.
func (c *Controller) CheckStatus(ctx *gin.Context) {
	targetID, err := strconv.ParseInt(ctx.Param("target_id"), 10, 64)
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid target ID", nil, nil)
		return
	}

	token := ctx.Query("token")
	if token == "" {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "token query parameter is required", nil, nil)
		return
	}

	userID, ok := middleware.UserID(ctx)
	if !ok {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	t, err := c.service.CheckStatus(ctx.Request.Context(), userID, targetID, token)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Queue status", StatusResponse{Status: t.Status, Rank: t.Rank}, nil)
}
