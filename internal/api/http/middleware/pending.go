package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paidwall/internal/api/http/handler"
)

type PendingChecker interface {
	PendingExists(ctx context.Context, token string) (bool, error)
}

// PendingGate runs before the paywall on the confirmation route. A visitor
// whose token is already consumed (or made up) is bounced back to the wall
// without being asked to pay for nothing.
func PendingGate(log *zap.Logger, svc PendingChecker, wallPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("pendingId")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, handler.ResponseWithMessage{
				Status:  handler.StatusErr,
				Message: "missing pendingId",
			})
			return
		}

		exists, err := svc.PendingExists(c.Request.Context(), token)
		if err != nil {
			log.Error("failed to check pending message", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, handler.ResponseWithMessage{
				Status:  handler.StatusErr,
				Message: "failed to check pending message",
			})
			return
		}

		if !exists {
			c.Redirect(http.StatusFound, wallPath)
			c.Abort()
			return
		}

		c.Next()
	}
}
