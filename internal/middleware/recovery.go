package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/glasslink/internal/model"
)

// Recovery turns panics into a logged internal_error problem.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("path", c.Request.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				AbortWithProblem(c, NewProblem(c, http.StatusInternalServerError,
					model.CodeInternalError, "An unexpected error occurred."))
			}
		}()
		c.Next()
	}
}
