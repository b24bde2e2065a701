package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/glasslink/internal/middleware"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/service"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth"
)

// CookiePolicy controls the refresh token cookie.
type CookiePolicy struct {
	// Secure is off only for plain-http local development.
	Secure bool
}

func (h *Handler) setRefreshCookie(c *gin.Context, value string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	h.setRefreshCookie(c, "", h.now().Add(-24*time.Hour))
}

func (h *Handler) clientIP(c *gin.Context) string {
	return service.ClientIP(c.Request.Header, c.Request.RemoteAddr)
}

// session sets the refresh cookie and writes the access token body.
func (h *Handler) session(c *gin.Context, s *service.Session) {
	h.setRefreshCookie(c, s.RefreshToken, s.RefreshExpiresAt)
	c.JSON(http.StatusOK, model.AuthResponse{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.AccessExpiresIn / time.Second),
	})
}

// register handles POST /api/auth/register
func (h *Handler) register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailed(c, err)
		return
	}

	s, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, h.clientIP(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, s)
}

// login handles POST /api/auth/login
func (h *Handler) login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailed(c, err)
		return
	}

	s, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, h.clientIP(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, s)
}

// refresh handles POST /api/auth/refresh using the refresh cookie
func (h *Handler) refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		h.fail(c, service.ErrInvalidRefreshToken)
		return
	}

	s, err := h.auth.Refresh(c.Request.Context(), token, h.clientIP(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.session(c, s)
}

// logout handles POST /api/auth/logout. It always answers 204.
func (h *Handler) logout(c *gin.Context) {
	if token, err := c.Cookie(refreshCookieName); err == nil && token != "" {
		if err := h.auth.Logout(c.Request.Context(), token, h.clientIP(c)); err != nil {
			_ = c.Error(err)
			h.logger.ErrorContext(c.Request.Context(), "logout failed", slog.String("error", err.Error()))
		}
	}
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

// me handles GET /api/auth/me
func (h *Handler) me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		h.fail(c, service.ErrInvalidCredentials)
		return
	}

	resp, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
