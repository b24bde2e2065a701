package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zhejian/glasslink/internal/model"
)

const userIDKey = "user_id"

// TokenVerifier validates a raw bearer token and returns its subject.
type TokenVerifier interface {
	VerifyAccessToken(raw string) (uuid.UUID, error)
}

// Auth rejects requests without a valid bearer access token.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			AbortWithProblem(c, NewProblem(c, http.StatusUnauthorized,
				model.CodeUnauthorized, "Authentication is required."))
			return
		}

		userID, err := verifier.VerifyAccessToken(strings.TrimSpace(raw))
		if err != nil {
			_ = c.Error(err)
			AbortWithProblem(c, NewProblem(c, http.StatusUnauthorized,
				model.CodeUnauthorized, "Access token is invalid or expired."))
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by Auth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
