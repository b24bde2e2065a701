package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/glasslink/internal/model"
)

// NewProblem fills the request-specific fields of a problem body.
func NewProblem(c *gin.Context, status int, code, title string) model.Problem {
	return model.Problem{
		Type:     fmt.Sprintf("https://httpstatuses.com/%d", status),
		Title:    title,
		Status:   status,
		Instance: c.Request.URL.Path,
		Code:     code,
		TraceID:  TraceID(c),
	}
}

// AbortWithProblem writes p as application/problem+json and stops the chain.
func AbortWithProblem(c *gin.Context, p model.Problem) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}
