package response

import (
	"showtix/internal/shared/apperr"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError maps a domain error onto the standard envelope. Unknown
// errors are reported as a generic 500 without leaking internals.
func RespondError(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)
	message := "internal server error"
	var details interface{}
	if e, ok := apperr.As(err); ok {
		message = e.Message
		if e.Code != "" {
			details = gin.H{"code": e.Code}
		}
	}
	RespondJSON(c, "error", code, message, nil, details)
}
