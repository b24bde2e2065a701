package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/glasslink/internal/middleware"
	"github.com/zhejian/glasslink/internal/model"
	"github.com/zhejian/glasslink/internal/service"
)

const validationTitle = "One or more validation errors occurred."

type problemKind struct {
	target error
	status int
	code   string
	title  string
}

// known maps expected service errors to client-visible problems.
var known = []problemKind{
	{service.ErrLinkNotFound, http.StatusNotFound, model.CodeNotFound, "Short URL not found."},
	{service.ErrLinkExpired, http.StatusGone, model.CodeExpired, "Short URL has expired."},
	{service.ErrCodeExists, http.StatusConflict, model.CodeConflict, "Short code is already in use."},
	{service.ErrCodeGeneration, http.StatusConflict, model.CodeConflict, "Failed to generate unique short code."},
	{service.ErrEmailTaken, http.StatusConflict, model.CodeConflict, "Email is already registered."},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, model.CodeInvalidCredentials, "Invalid email or password"},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, model.CodeInvalidCredentials, "Invalid refresh token."},
}

// fail writes err as a problem. Unknown errors are logged and hidden behind internal_error.
func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	_ = c.Error(err)

	var ve *service.ValidationError
	if errors.As(err, &ve) {
		h.validationProblem(c, ve.Fields)
		return
	}

	for _, k := range known {
		if errors.Is(err, k.target) {
			h.logger.WarnContext(ctx, "request failed",
				slog.String("code", k.code),
				slog.String("error", err.Error()),
			)
			middleware.AbortWithProblem(c, middleware.NewProblem(c, k.status, k.code, k.title))
			return
		}
	}

	h.logger.ErrorContext(ctx, "unexpected error",
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.AbortWithProblem(c, middleware.NewProblem(c, http.StatusInternalServerError,
		model.CodeInternalError, "An unexpected error occurred."))
}

func (h *Handler) validationProblem(c *gin.Context, fields map[string]string) {
	h.logger.WarnContext(c.Request.Context(), "validation failed", slog.Any("fields", fields))
	p := middleware.NewProblem(c, http.StatusBadRequest, model.CodeValidationFailed, validationTitle)
	p.Errors = fields
	middleware.AbortWithProblem(c, p)
}

// bindFailed reports a request that failed gin binding.
func (h *Handler) bindFailed(c *gin.Context, err error) {
	_ = c.Error(err)
	h.validationProblem(c, fieldErrors(err))
}

func (h *Handler) notFound(c *gin.Context) {
	h.fail(c, service.ErrLinkNotFound)
}
