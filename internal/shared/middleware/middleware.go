package middleware

import (
	"net/http"
	"time"

	"showtix/internal/shared/utils/response"
	"showtix/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity reads the user identity the upstream auth gateway injects.
// Authentication itself happens outside this service; requests arriving
// without a parseable X-User-Id never reach a handler.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-Id")
		if raw == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "X-User-Id header is required", nil, nil)
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "X-User-Id header must be a UUID", nil, nil)
			c.Abort()
			return
		}
		c.Set("user_id", userID.String())
		c.Next()
	}
}

// UserID returns the authenticated user's ID from the request context.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw.(string))
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

// RequestLogger logs each request with latency
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogHTTPRequest(c, time.Since(start))
	}
}
